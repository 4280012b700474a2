package httpapi

// RunStatus mirrors the last pipeline invocation at /run/status.
type RunStatus struct {
	LastRunAt   string `json:"last_run_at"`
	LastOkAt    string `json:"last_ok_at"`
	LastError   string `json:"last_error"`
	FilesDone   int    `json:"files_done"`
	LeadsStored int    `json:"leads_stored"`
	Running     bool   `json:"running"`
}
