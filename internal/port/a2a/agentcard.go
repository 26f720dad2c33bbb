package a2a

import (
	"fmt"

	"github.com/Strob0t/CourseForge/internal/domain/advisor"
)

// SkillGenerateSchedule is the entry skill; it starts a run at the router.
const SkillGenerateSchedule = "generate-schedule"

// BuildAgentCard returns the service card with the schedule skill followed by
// one skill per department advisor.
func BuildAgentCard(baseURL, version string, agents []advisor.Agent) AgentCard {
	card := AgentCard{
		Name:        "CourseForge",
		Description: "Course schedule planning across department advisors",
		URL:         baseURL,
		Version:     version,
		Skills: []Skill{{
			ID:          SkillGenerateSchedule,
			Name:        "Generate Schedule",
			Description: "Plan a semester schedule from completed courses, interests and goals",
			InputModes:  []string{"application/json"},
			OutputModes: []string{"text"},
		}},
	}
	for i := range agents {
		a := &agents[i]
		if a.Department == "" {
			continue
		}
		card.Skills = append(card.Skills, Skill{
			ID:          a.ID,
			Name:        a.Name,
			Description: fmt.Sprintf("Recommends %s courses", a.Department),
			InputModes:  []string{"application/json"},
			OutputModes: []string{"text"},
		})
	}
	return card
}
