package ollama

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"taxray/internal/logging"
)

// CheckStatus is the outcome of a single diagnostic check.
type CheckStatus string

const (
	StatusOK   CheckStatus = "ok"
	StatusWarn CheckStatus = "warn"
	StatusFail CheckStatus = "fail"
)

// Check is one diagnostic result.
type Check struct {
	Name    string
	Status  CheckStatus
	Detail  string
	Advice  string
}

// Diagnosis is the full doctor report.
type Diagnosis struct {
	Checks  []Check
	Healthy bool
}

// DoctorOptions configures diagnostics.
type DoctorOptions struct {
	// Models to verify are installed
	Models []string
	// EmbedModel to verify is installed
	EmbedModel string
	// AutoPull missing models instead of just reporting them
	AutoPull bool
}

// Doctor runs environment diagnostics: binary on PATH, server reachable,
// required models installed. With AutoPull set, missing models are pulled.
func (c *Client) Doctor(ctx context.Context, opts DoctorOptions) *Diagnosis {
	d := &Diagnosis{Healthy: true}

	// 1. ollama binary
	if path, err := exec.LookPath("ollama"); err != nil {
		d.add(Check{
			Name:   "ollama binary",
			Status: StatusWarn,
			Detail: "not found on PATH",
			Advice: "install from https://ollama.com/download (a remote server still works)",
		})
	} else {
		d.add(Check{Name: "ollama binary", Status: StatusOK, Detail: path})
	}

	// 2. server reachable
	version, err := c.Version(ctx)
	if err != nil {
		d.fail(Check{
			Name:   "server",
			Status: StatusFail,
			Detail: err.Error(),
			Advice: "start the server with 'ollama serve' or set ollama.host in the config",
		})
		// remaining checks need the server
		return d
	}
	d.add(Check{Name: "server", Status: StatusOK, Detail: fmt.Sprintf("%s (version %s)", c.host, version)})

	// 3. required models
	required := append([]string{}, opts.Models...)
	if opts.EmbedModel != "" {
		required = append(required, opts.EmbedModel)
	}
	for _, model := range required {
		ok, err := c.HasModel(ctx, model)
		if err != nil {
			d.fail(Check{Name: "model " + model, Status: StatusFail, Detail: err.Error()})
			continue
		}
		if ok {
			d.add(Check{Name: "model " + model, Status: StatusOK, Detail: "installed"})
			continue
		}

		if opts.AutoPull {
			logging.Ollama("Doctor: auto-pulling missing model %s", model)
			if err := c.Pull(ctx, model, nil); err != nil {
				d.fail(Check{
					Name:   "model " + model,
					Status: StatusFail,
					Detail: "pull failed: " + err.Error(),
					Advice: fmt.Sprintf("pull manually with 'ollama pull %s'", model),
				})
				continue
			}
			d.add(Check{Name: "model " + model, Status: StatusOK, Detail: "pulled"})
		} else {
			d.fail(Check{
				Name:   "model " + model,
				Status: StatusFail,
				Detail: "not installed",
				Advice: fmt.Sprintf("run 'ollama pull %s' or 'taxray models pull %s'", model, model),
			})
		}
	}

	return d
}

func (d *Diagnosis) add(c Check) {
	d.Checks = append(d.Checks, c)
}

func (d *Diagnosis) fail(c Check) {
	d.Checks = append(d.Checks, c)
	d.Healthy = false
}

// Summary renders the diagnosis as plain text.
func (d *Diagnosis) Summary() string {
	var b strings.Builder
	for _, c := range d.Checks {
		marker := "✓"
		switch c.Status {
		case StatusWarn:
			marker = "!"
		case StatusFail:
			marker = "✗"
		}
		fmt.Fprintf(&b, "[%s] %-24s %s\n", marker, c.Name, c.Detail)
		if c.Advice != "" {
			fmt.Fprintf(&b, "    → %s\n", c.Advice)
		}
	}
	if d.Healthy {
		b.WriteString("\nAll checks passed.\n")
	} else {
		b.WriteString("\nSome checks failed; see advice above.\n")
	}
	return b.String()
}
