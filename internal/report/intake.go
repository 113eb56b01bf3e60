package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/safetransit/safetransit/internal/stops"
)

// Step identifies the current position in the intake flow.
type Step int

// Intake steps, in the order they are walked. The flow is linear: every
// valid input advances exactly one step, and finalization folds back to
// StepLocation for the next report from the same actor.
const (
	StepLocation Step = iota
	StepCrowdLevel
	StepSafetyConcern
	StepAdditionalInfo
)

// String returns the step name for logging.
func (s Step) String() string {
	switch s {
	case StepLocation:
		return "awaiting_location"
	case StepCrowdLevel:
		return "awaiting_crowd_level"
	case StepSafetyConcern:
		return "awaiting_safety_concern"
	case StepAdditionalInfo:
		return "awaiting_additional_info"
	default:
		return fmt.Sprintf("step(%d)", int(s))
	}
}

// Prompt is what the transport should show the actor next.
// Options, when non-empty, are the accepted replies (rendered as a reply
// keyboard on chat transports); nil Options means free text is accepted.
type Prompt struct {
	Text    string
	Options []string
}

// Advance is the outcome of feeding one input to the machine.
type Advance struct {
	// Prompt for the next step, or a re-prompt when Rejected is set.
	Prompt Prompt

	// Rejected reports that the input failed validation. The step pointer
	// and the partial record are unchanged; Prompt names the accepted values.
	Rejected bool

	// Report is the finalized record. Set only on the transition out of
	// StepAdditionalInfo; nil otherwise.
	Report *Report
}

// Intake is the report intake state machine for a single actor.
//
// The machine is purely sequencing and validation: it performs no I/O.
// Emission to the store and the optional analysis call are the caller's
// responsibility (see Sessions), which keeps completion independent of
// collaborator availability.
//
// Not safe for concurrent use; each actor owns one Intake and drives it
// one transition at a time.
type Intake struct {
	registry *stops.Registry
	now      func() time.Time

	step       Step
	location   string
	crowd      CrowdLevel
	hasCrowd   bool
	concern    Concern
	hasConcern bool
}

// NewIntake creates an intake machine validating locations against registry.
func NewIntake(registry *stops.Registry) *Intake {
	return &Intake{registry: registry, now: time.Now}
}

// Step returns the machine's current step.
func (m *Intake) Step() Step {
	return m.step
}

// Prompt returns the prompt for the machine's current step.
func (m *Intake) Prompt() Prompt {
	switch m.step {
	case StepLocation:
		return Prompt{
			Text:    "📍 Please select your location:",
			Options: m.registry.Names(),
		}
	case StepCrowdLevel:
		return Prompt{
			Text:    "👥 What's the current crowd level?",
			Options: crowdOptions(),
		}
	case StepSafetyConcern:
		return Prompt{
			Text:    "⚠️ Any safety concerns? Select one:",
			Options: concernOptions(),
		}
	case StepAdditionalInfo:
		return Prompt{
			Text: "📝 Any additional information? (Type 'none' if nothing to add)",
		}
	default:
		panic(fmt.Sprintf("intake: prompt requested for invalid step %d", int(m.step)))
	}
}

// Advance feeds one input to the machine.
//
// Invalid input is a recoverable condition: the machine stays on the current
// step, the partial record is untouched, and the returned prompt names the
// accepted values. On the final step the record is finalized (timestamp
// assigned, safety score derived) and returned; the machine resets to
// StepLocation for the actor's next report.
func (m *Intake) Advance(input string) Advance {
	switch m.step {
	case StepLocation:
		// Trimmed like the other steps' parsers, so padded input from a
		// stepwise client is not rejected here only.
		location := strings.TrimSpace(input)
		if !m.registry.Contains(location) {
			return m.reject(fmt.Sprintf("❌ I don't know that stop. Please pick one of: %s.",
				strings.Join(m.registry.Names(), ", ")))
		}
		m.location = location
		m.step = StepCrowdLevel
		return Advance{Prompt: m.Prompt()}

	case StepCrowdLevel:
		level, err := ParseCrowdLevel(input)
		if err != nil {
			return m.reject(fmt.Sprintf("❌ Invalid crowd level. Please pick one of: %s.",
				joinCrowdLevels()))
		}
		m.crowd = level
		m.hasCrowd = true
		m.step = StepSafetyConcern
		return Advance{Prompt: m.Prompt()}

	case StepSafetyConcern:
		concern, err := ParseConcern(input)
		if err != nil {
			return m.reject(fmt.Sprintf("❌ Invalid safety concern. Please pick one of: %s.",
				joinConcerns()))
		}
		m.concern = concern
		m.hasConcern = true
		m.step = StepAdditionalInfo
		return Advance{Prompt: m.Prompt()}

	case StepAdditionalInfo:
		// Free text, empty allowed. "none" mirrors the chat prompt.
		info := strings.TrimSpace(input)
		if strings.EqualFold(info, "none") {
			info = ""
		}
		r := m.finalize(info)
		m.Cancel() // reset for the next report
		return Advance{Report: r}

	default:
		panic(fmt.Sprintf("intake: advance on invalid step %d", int(m.step)))
	}
}

// Cancel discards the in-progress record and resets to StepLocation.
// Nothing is emitted.
func (m *Intake) Cancel() {
	m.step = StepLocation
	m.location = ""
	m.crowd = ""
	m.hasCrowd = false
	m.concern = ""
	m.hasConcern = false
}

// reject keeps the current state and re-prompts with the given message.
func (m *Intake) reject(msg string) Advance {
	prompt := m.Prompt()
	prompt.Text = msg
	return Advance{Prompt: prompt, Rejected: true}
}

// finalize builds the immutable report from the accumulated fields.
// Reaching this point with a missing field is a programming defect in the
// transition contract, not a runtime condition: panic, don't recover.
func (m *Intake) finalize(additionalInfo string) *Report {
	if m.location == "" || !m.hasCrowd || !m.hasConcern {
		panic(fmt.Sprintf("intake: finalize with incomplete record (location=%q crowd=%v concern=%v)",
			m.location, m.hasCrowd, m.hasConcern))
	}

	concerns := NormalizeConcerns([]Concern{m.concern})
	return &Report{
		ID:             uuid.New(),
		Location:       m.location,
		CrowdLevel:     m.crowd,
		Concerns:       concerns,
		AdditionalInfo: additionalInfo,
		Timestamp:      m.now(),
		SafetyScore:    SafetyScore(m.crowd, concerns),
	}
}

func crowdOptions() []string {
	levels := CrowdLevels()
	out := make([]string, len(levels))
	for i, l := range levels {
		out[i] = string(l)
	}
	return out
}

func concernOptions() []string {
	concerns := Concerns()
	out := make([]string, len(concerns))
	for i, c := range concerns {
		out[i] = string(c)
	}
	return out
}

