package generation_client

const (
	EndpointGenerateRound  = "/v1/rounds:generate"
	EndpointVerifyItems    = "/v1/items:verify"
	EndpointGeneratePuzzle = "/v1/puzzles:generate"
)
