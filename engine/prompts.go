package engine

import (
	"fmt"
	"strings"

	"github.com/becomeliminal/nim-orchestrator/core"
)

const planningTemplate = `[USER INPUT]: %s

[MEMORY CONTEXT]: %s

[AVAILABLE TOOLS]:
%s

Based on the above, decide what to do. Respond with a JSON containing:
- action: "respond" (if the user input can be answered directly based on the memory context),
           "web_search" (if additional information from the web is required to answer the user input),
           or "run_tool" (if a specific tool needs to be executed to fulfill the user request).
- tool_name: (if applicable, specify the tool to be used when action is "run_tool". Must be one of the available tools)
- args: (if applicable, provide the arguments required for the tool when action is "run_tool")
- response: (used only if action is "respond", provide the direct response to the user)

Ensure that the tool chosen is appropriate for the user input and is one of the available tools. If no suitable tool is available, use "web_search" or "respond" instead.

Example:
{"action": "run_tool", "tool_name": "get_weather", "args": {"location": "New York"}, "response": ""}`

const searchQueryTemplate = `[USER INPUT]: %s

Generate a concise search query that will help find the most relevant information to answer the user's question or request.
The search query should:
1. Extract key terms and concepts
2. Be specific enough to yield precise results
3. Not include unnecessary words like "find" or "search for"
4. Focus on factual information needed

Return only the search query text, nothing else.`

const synthesisTemplate = `[USER QUESTION]: %s
[WEB SEARCH RESULTS]: %s

Based on the web search results, provide a comprehensive answer to the user's question.
Focus on accuracy and relevance. Cite specific information from the search results.
If the search results don't contain enough information to answer the question, acknowledge this limitation.`

const extractionTemplate = `[USER INPUT]: %s

[REQUIRED ARGUMENTS]:
%s

Extract the values for the required arguments from the user input.
Respond with a JSON containing the argument names and their extracted values.
If a required argument is not found in the user input, make a reasonable inference.`

const selectionTemplate = `[USER INPUT]: %s

[AVAILABLE TOOLS]:
%s

Based on the user input, identify the most suitable tool from the available tools list.
Respond with a JSON containing:
- tool_name: The name of the selected tool
- reason: Brief explanation for selecting this tool

If no tool is suitable, respond with:
{"tool_name": "none", "reason": "No suitable tool available"}`

func planningPrompt(request, memoryContext string, summaries []string) string {
	return fmt.Sprintf(planningTemplate, request, memoryContext, strings.Join(summaries, "\n"))
}

func searchQueryPrompt(request string) string {
	return fmt.Sprintf(searchQueryTemplate, request)
}

func synthesisPrompt(request, results string) string {
	return fmt.Sprintf(synthesisTemplate, request, results)
}

func extractionPrompt(request, argLines string) string {
	return fmt.Sprintf(extractionTemplate, request, argLines)
}

func selectionPrompt(request string, snapshot []core.ToolDescriptor) string {
	lines := make([]string, 0, len(snapshot))
	for _, d := range snapshot {
		desc := d.Description
		if desc == "" {
			desc = "No description"
		}
		lines = append(lines, fmt.Sprintf("- %s: %s", d.Name, desc))
	}
	return fmt.Sprintf(selectionTemplate, request, strings.Join(lines, "\n"))
}
