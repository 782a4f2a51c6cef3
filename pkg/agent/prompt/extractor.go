package prompt

import "fmt"

const extractorTemplate = `Please process the following webpage content and user goal to extract relevant information:

## **Webpage Content**
%s

## **User Goal**
%s

## **Task Guidelines**
1. **Content Scanning for Rational**: Locate the **specific sections/data** directly related to the user's goal within the webpage content
2. **Key Extraction for Evidence**: Identify and extract the **most relevant information** from the content, you never miss any important information, output the **full original context** of the content as far as possible, it can be more than three paragraphs.
3. **Summary Output for Summary**: Organize into a concise paragraph with logical flow, prioritizing clarity and judge the contribution of the information to the goal.

**Final Output Format using JSON format has "rational", "evidence", "summary" feilds**
`

// Extractor renders the webpage extraction prompt used by the visit tool.
// The model must answer with a JSON object carrying "rational", "evidence"
// and "summary" fields.
func Extractor(webpageContent, goal string) string {
	return fmt.Sprintf(extractorTemplate, webpageContent, goal)
}
