package store

// Call status ENUMs
const (
	CallStatusProcessing = "processing"
	CallStatusCompleted  = "completed"
	CallStatusFailed     = "failed"
)

// Sentiment ENUMs
const (
	SentimentPositive = "positive"
	SentimentNeutral  = "neutral"
	SentimentNegative = "negative"
)

// Call category ENUMs
const (
	CategoryBilling        = "billing"
	CategoryTechnical      = "technical"
	CategoryBundles        = "bundles"
	CategoryComplaints     = "complaints"
	CategoryGeneralInquiry = "general_inquiry"
	CategoryOther          = "other"
)

// Priority ENUMs
const (
	PriorityHigh   = "high"
	PriorityMedium = "medium"
	PriorityLow    = "low"
)

// Resolution status ENUMs
const (
	ResolutionResolved  = "resolved"
	ResolutionPending   = "pending"
	ResolutionEscalated = "escalated"
)
