package faktory

import "fmt"

// reservedCustomKey is the custom-payload key the client reserves for
// selecting a registered instance. Jobs must not set it themselves.
const reservedCustomKey = "faktory"

// validateBatchDeclaration checks a batch declaration before any connection
// is checked out. A declaration with neither callback is a programmer error
// and must never reach the wire.
func validateBatchDeclaration(description string, cfg batchConfig) error {
	if description == "" {
		return &DeclarationError{Reason: "description is required"}
	}
	if cfg.success == nil && cfg.complete == nil {
		return &DeclarationError{Reason: "a success or complete callback is required"}
	}
	if err := validateCallback("success", cfg.success); err != nil {
		return err
	}
	return validateCallback("complete", cfg.complete)
}

func validateCallback(kind string, job *Job) error {
	if job == nil {
		return nil
	}
	if job.Type == "" {
		return &DeclarationError{Reason: kind + " callback job type is required"}
	}
	if _, ok := job.Custom[reservedCustomKey]; ok {
		return &DeclarationError{Reason: fmt.Sprintf("%s callback must not set the reserved custom key %q", kind, reservedCustomKey)}
	}
	return nil
}

// validateJob checks a job record before it is pushed.
func validateJob(job *Job) error {
	if job == nil {
		return fmt.Errorf("faktory: job is required")
	}
	if job.Type == "" {
		return fmt.Errorf("faktory: job type is required")
	}
	if job.Args == nil {
		return fmt.Errorf("faktory: job args must not be nil, use an empty slice instead")
	}
	if _, ok := job.Custom[reservedCustomKey]; ok {
		return fmt.Errorf("faktory: job must not set the reserved custom key %q", reservedCustomKey)
	}
	return nil
}

// validateBid checks the batch id forwarded by lifecycle operations. The id
// is otherwise opaque: it originates from the server and is never parsed.
func validateBid(verb, bid string) error {
	if bid == "" {
		return fmt.Errorf("faktory: %s: batch id is required", verb)
	}
	return nil
}
