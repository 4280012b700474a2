package config

import (
	"fmt"
	"strings"
)

type Validation struct {
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

func (v *Validation) addErr(format string, args ...any) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}
func (v *Validation) addWarn(format string, args ...any) {
	v.Warnings = append(v.Warnings, fmt.Sprintf(format, args...))
}
func (v Validation) OK() bool { return len(v.Errors) == 0 }

// NormalizeAndValidate fills defaults, trims list fields and reports
// anything that would make a run misbehave.
func NormalizeAndValidate(cfg Config) (Config, Validation) {
	out := cfg
	var res Validation

	trimList := func(xs []string) []string {
		seen := map[string]bool{}
		var ys []string
		for _, x := range xs {
			x = strings.TrimSpace(x)
			if x == "" {
				continue
			}
			key := strings.ToLower(x)
			if seen[key] {
				continue
			}
			seen[key] = true
			ys = append(ys, x)
		}
		return ys
	}

	out.Mailbox.FromAny = trimList(out.Mailbox.FromAny)

	// ---- Defaults ----

	if out.Market.State == "" {
		out.Market.State = "TX"
	}
	if out.Inbox.Dir == "" {
		out.Inbox.Dir = "inbox"
	}
	if out.Pipeline.DeepAnalysisLimit <= 0 {
		out.Pipeline.DeepAnalysisLimit = 20
	}
	if out.SkipTrace.PollSeconds <= 0 {
		out.SkipTrace.PollSeconds = 10
	}
	if out.SkipTrace.MaxAttempts <= 0 {
		out.SkipTrace.MaxAttempts = 12
	}
	if out.Analysis.MinDelaySeconds <= 0 {
		out.Analysis.MinDelaySeconds = 1
	}
	if out.Notify.TopN <= 0 {
		out.Notify.TopN = 10
	}

	// ---- Validation rules ----

	if out.App.Port <= 0 || out.App.Port > 65535 {
		res.addErr("app.port must be 1..65535")
	}

	if out.Pipeline.ScheduleMinutes < 0 {
		res.addErr("pipeline.schedule_minutes must be >= 0 (0 disables the scheduled trigger)")
	}

	if out.SkipTrace.Enabled && strings.TrimSpace(out.SkipTrace.BaseURL) == "" {
		res.addErr("skiptrace.base_url is required when skiptrace.enabled=true")
	}
	if out.SkipTrace.PollSeconds*out.SkipTrace.MaxAttempts > 600 {
		res.addWarn("skiptrace poll budget is %ds; long waits can stall the run loop.",
			out.SkipTrace.PollSeconds*out.SkipTrace.MaxAttempts)
	}

	if out.Mailbox.Enabled {
		if strings.TrimSpace(out.Mailbox.IMAPHost) == "" {
			res.addErr("mailbox.imap_host is required when mailbox.enabled=true")
		}
		if out.Mailbox.IMAPPort == 0 {
			res.addErr("mailbox.imap_port is required when mailbox.enabled=true")
		}
		if strings.TrimSpace(out.Mailbox.Username) == "" {
			res.addErr("mailbox.username is required when mailbox.enabled=true")
		}
		if len(out.Mailbox.FromAny) == 0 {
			res.addWarn("mailbox.from_any is empty; every attachment sender will be accepted.")
		}
	}

	if strings.TrimSpace(out.Notify.WebhookURL) == "" {
		res.addWarn("notify.webhook_url is empty; run digests will be skipped.")
	}

	return out, res
}
