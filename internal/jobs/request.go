package jobs

// Request is a submission intent before pricing and validation.
// CostCredits of zero means the price comes from the pricing table.
type Request struct {
	Kind          Kind        `json:"kind"`
	InputText     string      `json:"input_text,omitempty"`
	References    []Reference `json:"references,omitempty"`
	Tier          Tier        `json:"tier"`
	Resolution    string      `json:"resolution,omitempty"`
	AspectRatio   string      `json:"aspect_ratio,omitempty"`
	ParentJobID   string      `json:"parent_job_id,omitempty"`
	SourceAssetID string      `json:"source_asset_id,omitempty"`
	CostCredits   int64       `json:"cost_credits,omitempty"`
}
