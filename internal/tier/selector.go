package tier

// ContentType of a generation request.
type ContentType string

const (
	Image ContentType = "image"
	Video ContentType = "video"
	Text  ContentType = "text"
)

// Valid reports whether ct is a supported content type.
func (ct ContentType) Valid() bool {
	switch ct {
	case Image, Video, Text:
		return true
	}
	return false
}

// Model is one fallback candidate. VendorCostCents is the upstream compute
// vendor's fixed per-invocation price (zero for models billed in bulk).
// Mandatory marks the tier's default model: a vendor-payment failure on it
// fails the whole request instead of falling through to the next candidate.
type Model struct {
	ID              string
	VendorCostCents int64
	Mandatory       bool
}

// modelTable maps (content type, tier) to the ordered fallback list the
// orchestrator walks. Order matters: first entry is the default.
var modelTable = map[ContentType]map[Tier][]Model{
	Image: {
		Basic: {
			{ID: "sdxl-lite", Mandatory: true},
		},
		Standard: {
			{ID: "sdxl-lite", Mandatory: true},
			{ID: "flux-schnell", VendorCostCents: 4},
		},
		Premium: {
			{ID: "flux-pro", VendorCostCents: 25, Mandatory: true},
			{ID: "flux-schnell", VendorCostCents: 4},
			{ID: "sdxl-lite"},
		},
		Unlimited: {
			{ID: "flux-pro", VendorCostCents: 25, Mandatory: true},
			{ID: "imagen-ultra", VendorCostCents: 40},
			{ID: "flux-schnell", VendorCostCents: 4},
			{ID: "sdxl-lite"},
		},
	},
	Video: {
		Basic: {
			{ID: "kling-lite", Mandatory: true},
		},
		Standard: {
			{ID: "kling-lite", Mandatory: true},
			{ID: "runway-turbo", VendorCostCents: 35},
		},
		Premium: {
			{ID: "runway-gen3", VendorCostCents: 80, Mandatory: true},
			{ID: "runway-turbo", VendorCostCents: 35},
			{ID: "kling-lite"},
		},
		Unlimited: {
			{ID: "runway-gen3", VendorCostCents: 80, Mandatory: true},
			{ID: "veo-hd", VendorCostCents: 120},
			{ID: "runway-turbo", VendorCostCents: 35},
			{ID: "kling-lite"},
		},
	},
	Text: {
		Basic: {
			{ID: "lumen-mini", Mandatory: true},
		},
		Standard: {
			{ID: "lumen-mini", Mandatory: true},
			{ID: "lumen-pro", VendorCostCents: 2},
		},
		Premium: {
			{ID: "lumen-pro", VendorCostCents: 2, Mandatory: true},
			{ID: "lumen-mini"},
		},
		Unlimited: {
			{ID: "lumen-max", VendorCostCents: 5, Mandatory: true},
			{ID: "lumen-pro", VendorCostCents: 2},
			{ID: "lumen-mini"},
		},
	},
}

// SelectModels returns the fallback model list for (contentType, tier) in try
// order. The returned slice is a copy; callers may not mutate the tables.
// Unknown combinations return nil.
func SelectModels(ct ContentType, t Tier) []Model {
	tiers, ok := modelTable[ct]
	if !ok {
		return nil
	}
	models, ok := tiers[t]
	if !ok {
		return nil
	}
	out := make([]Model, len(models))
	copy(out, models)
	return out
}
