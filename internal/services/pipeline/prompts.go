package pipeline

const (
	// jsonEnforcementPrompt is part 1 of every two-part prompt (spec §4.D
	// steps 4-5, §9): fixed, never customizable by publisher config, so a
	// publisher's custom prompt can never break response parsing.
	jsonEnforcementPrompt = `You must respond with a single JSON object and nothing else: ` +
		`no prose before or after it, no markdown fences unless explicitly requested by the schema below. ` +
		`If you cannot comply exactly, still return your best-effort JSON.`

	defaultSummaryPrompt = `Summarize the following article. Respond with JSON of the shape ` +
		`{"summary": string, "key_points": [string, ...]}. Keep the summary to 3-5 sentences and ` +
		`key_points to 3-6 short bullet statements.`

	defaultQuestionPromptTemplate = `Read the following article and produce exactly %d question-and-answer ` +
		`pairs a reader might ask about it. Respond with JSON of the shape ` +
		`{"questions": [{"question": string, "answer": string}, ...]} containing exactly %d items.`
)
