package reporter

import (
	"fmt"
	"io"
	"os"

	"buckets-migrator/internal/reconciler"
	"buckets-migrator/pkg/errors"
	"buckets-migrator/pkg/logger"
)

// SafeReportGenerator wraps ReportGenerator with logging and a console
// fallback when a structured format cannot be produced.
type SafeReportGenerator struct {
	*ReportGenerator
	logger logger.Logger
}

// NewSafeReportGenerator creates a new safe report generator with error handling
func NewSafeReportGenerator(config *ReportConfig, log logger.Logger) (*SafeReportGenerator, error) {
	if log == nil {
		log = logger.GetGlobalLogger()
	}

	generator, err := NewReportGenerator(config)
	if err != nil {
		var format interface{}
		if config != nil {
			format = config.Format
		}
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "output-format", format, err)
	}

	return &SafeReportGenerator{
		ReportGenerator: generator,
		logger:          log.WithComponent("reporter"),
	}, nil
}

// GenerateReportSafely writes the run report, falling back to the console
// format if the requested one fails.
func (srg *SafeReportGenerator) GenerateReportSafely(result *reconciler.RunResult, writer io.Writer) error {
	if result == nil || writer == nil {
		return errors.InternalError("report generation", fmt.Errorf("result and writer are required"))
	}

	srg.logger.WithFields(logger.Fields{
		"format": srg.config.Format,
		"output": getWriterDescription(writer),
	}).Debug("Starting report generation")

	err := srg.GenerateReport(result, writer)
	if err == nil {
		return nil
	}
	srg.logger.WithError(err).Warn("Primary report generation failed, attempting fallback")

	if srg.config.Format == FormatConsole {
		return errors.InternalError("report generation", err).
			WithSuggestion("check the output destination")
	}
	return srg.generateWithFormatFallback(result, writer, err)
}

// GeneratePurgeReportSafely writes the purge report with the same logging
func (srg *SafeReportGenerator) GeneratePurgeReportSafely(result *reconciler.PurgeResult, writer io.Writer) error {
	if err := srg.GeneratePurgeReport(result, writer); err != nil {
		srg.logger.WithError(err).Error("Purge report generation failed")
		return errors.InternalError("purge report generation", err)
	}
	return nil
}

func (srg *SafeReportGenerator) generateWithFormatFallback(result *reconciler.RunResult, writer io.Writer, originalErr error) error {
	fallbackConfig := *srg.config
	fallbackConfig.Format = FormatConsole
	fallbackConfig.UseColors = false

	fallbackGenerator, err := NewReportGenerator(&fallbackConfig)
	if err != nil {
		return errors.InternalError("report generation", originalErr)
	}

	fmt.Fprintf(writer, "NOTE: report generated in console format after an error with %s\n", srg.config.Format)
	fmt.Fprintf(writer, "Original error: %v\n\n", originalErr)

	if err := fallbackGenerator.GenerateReport(result, writer); err != nil {
		return errors.InternalError("report fallback",
			fmt.Errorf("both primary and fallback generation failed: primary=%v, fallback=%v", originalErr, err))
	}

	srg.logger.Info("Report generated using console fallback")
	return nil
}

func getWriterDescription(writer io.Writer) string {
	switch w := writer.(type) {
	case *os.File:
		if w.Name() != "" {
			return fmt.Sprintf("file:%s", w.Name())
		}
		return "file:unnamed"
	default:
		return fmt.Sprintf("writer:%T", writer)
	}
}
