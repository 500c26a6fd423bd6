package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"taunote/internal/config"
	"taunote/internal/deps"
	"taunote/internal/preflight"
)

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	var offline bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check tools, directories, credentials, and GPU availability",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			problems := 0

			var lines []string
			lines = append(lines, renderSectionHeader("Configuration", colorize)...)
			lines = append(lines,
				renderStatusLine("Config file", statusInfo, ctx.configPath, colorize),
				renderStatusLine("Transcription", statusInfo, fmt.Sprintf("%s, model %s, device %s", cfg.Transcription.Backend, cfg.Transcription.Model, cfg.Transcription.Device), colorize),
				renderStatusLine("Alignment", statusInfo, yesNo(cfg.Alignment.Enabled && cfg.Transcription.Backend == config.BackendWhisperX), colorize),
				renderStatusLine("Diarization", statusInfo, diarizationSummary(cfg), colorize),
			)
			if err := cfg.RequireHFToken(); err != nil {
				problems++
				lines = append(lines, renderStatusLine("Hugging Face token", statusError, "missing (set HUGGINGFACE_TOKEN)", colorize))
			}

			statuses := preflight.CheckSystemDeps(cmd.Context(), cfg)
			problems += len(deps.Missing(statuses))
			lines = append(lines, "")
			lines = append(lines, renderSectionHeader("Dependencies", colorize)...)
			lines = append(lines, dependencyLines(statuses, colorize)...)

			results := preflight.RunAll(cmd.Context(), cfg, preflight.Options{SkipRemote: offline})
			problems += len(preflight.Failed(results))
			lines = append(lines, "")
			lines = append(lines, renderSectionHeader("Checks", colorize)...)
			for _, result := range results {
				lines = append(lines, checkLine(result, colorize))
			}

			llmCfg := cfg.GetLLM()
			switch {
			case llmCfg.APIKey == "":
				lines = append(lines, renderStatusLine("LLM notes", statusInfo, "not configured (notes disabled)", colorize))
			case offline:
				lines = append(lines, renderStatusLine("LLM notes", statusInfo, "skipped (--offline)", colorize))
			default:
				result := preflight.CheckLLM(cmd.Context(), "LLM notes", llmCfg)
				if !result.Passed {
					problems++
				}
				lines = append(lines, checkLine(result, colorize))
			}

			gpu := preflight.ProbeGPU(cmd.Context())
			gpuKind := statusOK
			if !gpu.Detected {
				gpuKind = statusInfo
				if cfg.Transcription.Device == config.DeviceCUDA {
					gpuKind = statusError
					problems++
				}
			}
			lines = append(lines, "")
			lines = append(lines, renderSectionHeader("GPU", colorize)...)
			lines = append(lines, renderStatusLine("CUDA", gpuKind, gpu.Detail(), colorize))

			for _, line := range lines {
				fmt.Fprintln(out, line)
			}
			if problems > 0 {
				return fmt.Errorf("doctor found %d problem(s)", problems)
			}
			fmt.Fprintln(out)
			fmt.Fprintln(out, "All checks passed")
			return nil
		},
	}

	cmd.Flags().BoolVar(&offline, "offline", false, "Skip checks that contact remote services")
	return cmd
}

func diarizationSummary(cfg *config.Config) string {
	if !cfg.Diarization.Enabled {
		return "disabled"
	}
	summary := cfg.Diarization.Backend
	if cfg.Diarization.MinSpeakers > 0 || cfg.Diarization.MaxSpeakers > 0 {
		summary += fmt.Sprintf(", speakers %s", speakerBounds(cfg.Diarization.MinSpeakers, cfg.Diarization.MaxSpeakers))
	}
	return summary
}

func speakerBounds(minSpeakers, maxSpeakers int) string {
	lower, upper := "any", "any"
	if minSpeakers > 0 {
		lower = fmt.Sprint(minSpeakers)
	}
	if maxSpeakers > 0 {
		upper = fmt.Sprint(maxSpeakers)
	}
	return lower + ".." + upper
}
