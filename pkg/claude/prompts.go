package claude

// SearchSystemPrompt instructs Claude to rely on the web_search tool.
const SearchSystemPrompt = "Use the web_search tool to search for information and return detailed search results. Ensure it includes the latest information."

// searchInstruction prefixes every user query.
const searchInstruction = "Please search for the following content and provide detailed search results: "

// BuildSearchPrompt builds the single user message sent for a query.
func BuildSearchPrompt(query string) (result string) {
	result = searchInstruction + query
	return result
}
