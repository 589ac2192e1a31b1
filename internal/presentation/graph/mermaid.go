package graph

import (
	"fmt"
	"strings"

	"github.com/aretw0/arbiter/pkg/dsl"
)

// GenerateMermaid produces a Mermaid flowchart for one workflow document.
// Semantic styling:
// - Action entry: ((Circle))
// - Phase: [Rectangle]
// - Roll branch: [/Parallelogram/]
// - Skip condition: dotted bypass edge
// Roll branches are annotated with dice, timeout and fallback so a reviewer
// sees the full fan-out without opening the YAML.
func GenerateMermaid(doc dsl.WorkflowDoc) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	entry := sanitizeMermaidID(doc.ActionType)
	sb.WriteString(fmt.Sprintf("    %s((\"%s v%d\"))\n", entry, doc.ActionType, doc.Version))

	prev := entry
	for i, phase := range doc.Phases {
		phaseID := fmt.Sprintf("p%d", i)
		label := phase.Name
		if label == "" {
			label = phaseID
		}
		if n := len(phase.Effects); n > 0 {
			label = fmt.Sprintf("%s <br/> %d effect(s)", label, n)
		}
		sb.WriteString(fmt.Sprintf("    %s[\"%s\"]\n", phaseID, label))
		sb.WriteString(fmt.Sprintf("    %s --> %s\n", prev, phaseID))

		// Skip predicates bypass the phase entirely.
		if phase.Skip != nil {
			next := "done"
			if i+1 < len(doc.Phases) {
				next = fmt.Sprintf("p%d", i+1)
			}
			cond := fmt.Sprintf("%s == %v", phase.Skip.Field, phase.Skip.Equals)
			safeCond := strings.ReplaceAll(cond, "\"", "'")
			sb.WriteString(fmt.Sprintf("    %s -. \"skip: %s\" .-> %s\n", prev, safeCond, next))
		}

		for j, roll := range phase.Rolls {
			rollID := fmt.Sprintf("p%dr%d", i, j)
			parts := []string{roll.Target, roll.Dice}
			if roll.Purpose != "" {
				parts = append(parts, fmt.Sprintf("(%s)", roll.Purpose))
			}
			if roll.Timeout != "" {
				parts = append(parts, fmt.Sprintf("⏱️ %s", roll.Timeout))
			}
			rollLabel := strings.Join(parts, " ")
			sb.WriteString(fmt.Sprintf("    %s[/\"%s\"/]\n", rollID, strings.ReplaceAll(rollLabel, "\"", "'")))

			arrow := "-->"
			if roll.Fallback != "" {
				arrow = fmt.Sprintf("-- \"%s\" -->", roll.Fallback)
			}
			sb.WriteString(fmt.Sprintf("    %s %s %s\n", phaseID, arrow, rollID))
			sb.WriteString(fmt.Sprintf("    %s --> %s\n", rollID, phaseID))
		}

		prev = phaseID
	}

	sb.WriteString("    done((\"commit\"))\n")
	sb.WriteString(fmt.Sprintf("    %s --> done\n", prev))
	return sb.String()
}

func sanitizeMermaidID(id string) string {
	s := strings.ReplaceAll(id, ".", "_")
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	return s
}
