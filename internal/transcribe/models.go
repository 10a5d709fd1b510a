package transcribe

// ModelInfo describes one size tier of the external model.
type ModelInfo struct {
	Tag         string `json:"tag"`
	Name        string `json:"name"`
	Params      string `json:"params"`
	Description string `json:"description"`
}

// Models lists the supported size tiers, cheapest first.
var Models = []ModelInfo{
	{Tag: "tiny", Name: "Tiny", Params: "39M", Description: "fastest, lowest accuracy"},
	{Tag: "base", Name: "Base", Params: "74M", Description: "good default for CPU"},
	{Tag: "small", Name: "Small", Params: "244M", Description: "balanced"},
	{Tag: "medium", Name: "Medium", Params: "769M", Description: "high accuracy, slow on CPU"},
	{Tag: "large", Name: "Large", Params: "1550M", Description: "best accuracy, GPU recommended"},
}

// ValidModel reports whether tag names a known size tier.
func ValidModel(tag string) bool {
	for _, m := range Models {
		if m.Tag == tag {
			return true
		}
	}
	return false
}
