package prompt

// PromptIDs contains all known prompt identifiers
var PromptIDs = struct {
	RecommendationInvestment string
	RecommendationSchema     string
}{
	RecommendationInvestment: "recommendation.investment",
	RecommendationSchema:     "recommendation",
}
