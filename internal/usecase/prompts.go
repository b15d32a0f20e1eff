package usecase

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"tutor-dispatch/internal/domain"
)

// Persona is the fixed identity of a specialist.
type Persona struct {
	Key         string // registry key, e.g. "math"
	Name        string // display name, e.g. "Math Tutor"
	Label       string // source label, e.g. "Math Agent"
	Subject     string // used in apologies: "your math question"
	Focus       string // short list for the general tutor prompt
	Description string
	Instruction string
	ToolRules   string // appended after the tool catalog
	Reminders   []string
	Heuristic   Heuristic
}

// MathPersona returns the mathematics specialist persona.
func MathPersona() Persona {
	return Persona{
		Key:     "math",
		Name:    "Math Tutor",
		Label:   "Math Agent",
		Subject: "math",
		Focus:   "algebra, calculus, equations",
		Description: "I am a specialized mathematics tutor with expertise in algebra, geometry, calculus, " +
			"arithmetic, and mathematical problem-solving. I can solve equations, perform calculations, " +
			"look up formulas, and explain mathematical concepts step by step.",
		Instruction: `You are a specialized Math Tutor agent. Your primary role is to help students understand and solve mathematical problems.

When solving problems:
1. Identify what type of problem it is
2. Use the appropriate tool before attempting the problem manually
3. Explain the reasoning behind each step
4. Verify your answers when possible
5. Relate concepts to real-world applications when relevant

Always aim to educate, not just provide answers. Show your work and explain your reasoning, including why you chose specific tools.`,
		ToolRules: `You MUST use these tools when appropriate:
- For ANY equation with variables (like "solve 2x + 5 = 15"), call equation_solver
- For numerical calculations (like "calculate 2.5 * 8 + sqrt(16)"), call calculator
- For formula requests (like "what is the quadratic formula"), call formula_lookup

Do not solve equations, do complex arithmetic, or recite formulas from memory when a tool can do it.`,
		Reminders: []string{
			"Use tools immediately when the query requires them",
			"Provide clear, educational explanations after using tools",
			"Show your reasoning step by step",
			"Help the student understand concepts, not just answers",
		},
		Heuristic: mathHeuristic,
	}
}

// PhysicsPersona returns the physics specialist persona.
func PhysicsPersona() Persona {
	return Persona{
		Key:     "physics",
		Name:    "Physics Tutor",
		Label:   "Physics Agent",
		Subject: "physics",
		Focus:   "mechanics, electricity, forces",
		Description: "I am a specialized physics tutor with expertise in mechanics, electricity, magnetism, " +
			"thermodynamics, and modern physics. I can solve physics problems, explain concepts, perform " +
			"calculations with proper units, and help students understand the fundamental principles of physics.",
		Instruction: `You are a specialized Physics Tutor agent. Your primary role is to help students understand and solve physics problems.

Your expertise covers:
- Classical Mechanics (motion, forces, energy, momentum)
- Electricity and Magnetism (circuits, fields, electromagnetic waves)
- Thermodynamics (heat, temperature, entropy, gas laws)
- Waves and Optics (sound, light, interference, diffraction)
- Modern Physics (relativity, quantum mechanics, atomic physics)

When solving physics problems:
1. Identify the relevant physics principles and laws
2. Use correct units throughout all calculations
3. Use tools for calculations and formulas when needed
4. Explain the physical meaning of results
5. Verify that answers make physical sense`,
		ToolRules: `You MUST use these tools when appropriate:
- For formula requests (like "what is the formula for kinetic energy"), call formula_lookup
- For numerical calculations with physics formulas, call calculator

Do not recite formulas from memory or do multi-step arithmetic by hand.`,
		Reminders: []string{
			"Use tools immediately when the query requires them",
			"Keep units on every quantity",
			"Explain the physical meaning of each result",
		},
		Heuristic: physicsHeuristic,
	}
}

// BuildSystemPrompt renders a persona's system prompt. The tool catalog
// section is present only when tools are.
func BuildSystemPrompt(p Persona, tools []domain.ToolSchema) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "You are %s.\n\n%s\n\n%s", p.Name, p.Instruction, p.Description)

	if len(tools) > 0 {
		sb.WriteString("\n\nAvailable Tools:\n")
		for _, t := range tools {
			fmt.Fprintf(&sb, "- %s: %s\n", t.Name, t.Description)
		}
		if p.ToolRules != "" {
			sb.WriteString("\n" + p.ToolRules + "\n")
		}
	}

	if len(p.Reminders) > 0 {
		sb.WriteString("\nRemember to:\n")
		for _, r := range p.Reminders {
			fmt.Fprintf(&sb, "- %s\n", r)
		}
	}
	return sb.String()
}

// BuildUserPrompt renders the student question with its optional context.
func BuildUserPrompt(req domain.TaskRequest) string {
	if req.Context == "" {
		return "Student Question: " + req.Query
	}
	return "Student Question: " + req.Query + "\n\nContext: " + req.Context
}

func formattingPrompt(subject, query, transcript, callsJSON string) string {
	return fmt.Sprintf(`Please format and explain this %s solution clearly for a student:

Original Question: %s

Solution Process: %s

Tool Results Used: %s

Please provide a clear, step-by-step explanation that helps the student understand both the process and the final answer. Explain which tools were used and why.`,
		subject, query, transcript, callsJSON)
}

// RoutingSystemPrompt instructs the model to pick exactly one decision function.
func RoutingSystemPrompt(coordinator string, personas []Persona) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "You are an %s responsible for routing student queries to the most appropriate specialist agent.\n\n", coordinator)
	sb.WriteString("Decide whether each query should be:\n")
	for i, p := range personas {
		fmt.Fprintf(&sb, "%d. Routed to the %s (%s)\n", i+1, p.Name, p.Focus)
	}
	fmt.Fprintf(&sb, "%d. Handled directly as a general tutor (other subjects or mixed topics)\n\n", len(personas)+1)
	sb.WriteString("Always call exactly one of the provided functions and give your reasoning. ")
	sb.WriteString("Be decisive: every query must be routed somewhere.")
	return sb.String()
}

func routingPrompt(req domain.TaskRequest) string {
	return fmt.Sprintf(`Analyze this student query and decide how to handle it:

Student Query: %q

Context: %s

Use the appropriate function to route this query. Consider:
- Subject matter and complexity
- Whether specialized tools would be helpful
- Student's likely learning needs

Be decisive and choose the most appropriate routing option.`, req.Query, contextOrNone(req.Context))
}

func enhancementPrompt(coordinator, query, reasoning, specialist, content string) string {
	return fmt.Sprintf(`You are the %s. A student asked a question that you routed to a specialist.

Original Question: %s
Routing Reasoning: %s
Specialist: %s
Specialist Response: %s

Please create a cohesive response that:
1. Briefly acknowledges why this specialist was chosen
2. Presents the specialist's response in a student-friendly way
3. Adds any helpful learning guidance

Keep it natural and don't over-explain the routing process.`,
		coordinator, query, reasoning, specialist, content)
}

func generalTutorPrompt(req domain.TaskRequest, reasoning string, specialists []string) string {
	available := "none"
	if len(specialists) > 0 {
		available = strings.Join(specialists, ", ")
	}
	return fmt.Sprintf(`You are an AI Tutor providing direct educational assistance.

Student Question: %s
Context: %s

Routing Decision: %s

Available Specialists: %s

Provide a comprehensive, educational response. If the question could benefit from specialized help in the future, gently mention which specialist might be helpful, but answer the question to the best of your ability.`,
		req.Query, contextOrNone(req.Context), reasoning, available)
}

func contextOrNone(c string) string {
	if strings.TrimSpace(c) == "" {
		return "None provided"
	}
	return c
}

// preview returns the first n runes of s, marking truncation with "...".
func preview(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}
