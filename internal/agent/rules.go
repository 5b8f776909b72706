package agent

import (
	"time"

	"github.com/capitalize-ai/whatsapp-inbox/internal/model"
)

// ShouldReply reports whether the AI should answer an inbound message.
// firstMessage is true when the inbound message opened the conversation.
func (c *Config) ShouldReply(conv *model.Conversation, inbound string, firstMessage bool, now time.Time) bool {
	if !conv.AIMaySend() {
		return false
	}

	t := c.Triggers
	if t.Schedule != nil && !t.Schedule.Contains(now) {
		return false
	}

	switch {
	case t.FirstMessage && firstMessage:
		return true
	case len(t.Keywords) > 0 && containsAny(inbound, t.Keywords):
		return true
	case t.Tag != "" && conv.HasTag(t.Tag):
		return true
	case t.Score != nil && t.Score.Matches(conv.CRM.Score):
		return true
	case t.PipelineStage != "" && conv.CRM.PipelineStage == t.PipelineStage:
		return true
	}

	// With no selective trigger configured the agent answers everything.
	return !t.selective()
}

func (t Triggers) selective() bool {
	return t.FirstMessage || len(t.Keywords) > 0 || t.Tag != "" || t.Score != nil || t.PipelineStage != ""
}

// Matches applies the operator to score.
func (s *ScoreTrigger) Matches(score int) bool {
	switch s.Operator {
	case ScoreGreaterThan:
		return score > s.Value
	case ScoreLessThan:
		return score < s.Value
	}
	return false
}

// Contains reports whether now falls inside the window, in now's location.
func (w *ScheduleWindow) Contains(now time.Time) bool {
	if len(w.Days) > 0 {
		ok := false
		for _, d := range w.Days {
			if d == now.Weekday() {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}

	start, err := time.Parse("15:04", w.Start)
	if err != nil {
		return false
	}
	end, err := time.Parse("15:04", w.End)
	if err != nil {
		return false
	}

	minutes := now.Hour()*60 + now.Minute()
	from := start.Hour()*60 + start.Minute()
	to := end.Hour()*60 + end.Minute()
	if from <= to {
		return minutes >= from && minutes < to
	}
	// Overnight window, e.g. 22:00-06:00.
	return minutes >= from || minutes < to
}

// EvaluateHandoff returns the first handoff condition met by an inbound
// message, or "" when the AI should keep answering.
func (c *Config) EvaluateHandoff(conv *model.Conversation, inbound string) HandoffReason {
	if !conv.AIMaySend() {
		return ""
	}

	h := c.Handoff
	if h.ExplicitRequest && containsAny(inbound, h.Keywords) {
		return HandoffExplicitRequest
	}
	if h.MessageLimit > 0 && conv.AIReplyCount >= h.MessageLimit {
		return HandoffMessageLimit
	}
	if h.ScoreThreshold > 0 && conv.CRM.Score >= h.ScoreThreshold {
		return HandoffScoreThreshold
	}
	return ""
}
