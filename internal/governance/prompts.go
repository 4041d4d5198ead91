package governance

import (
	"strings"
	"text/template"
)

const detectSystemPrompt = "You are a code analysis expert. Your task is to compare two versions of a source file " +
	"and identify the key changes related to API endpoints. You must respond in a specific JSON format."

const validateSystemPrompt = "You are an API governance expert. Your task is to validate a code snippet against " +
	"a specific governance rule. Be precise and clear in your judgment."

const reportSystemPrompt = "You are an expert in API governance reporting. Your task is to create a clear, " +
	"concise, and actionable summary report from a list of validation findings."

const detectUserTemplate = `Below are two versions of a source file. Please analyze the changes from the old code to the new code.

## Old Code:
` + "```" + `
{{.OldCode}}
` + "```" + `

## New Code:
` + "```" + `
{{.NewCode}}
` + "```" + `

Now, perform these two tasks:
1.  Extract the full code of the **new or modified** API endpoint, function, or class from the 'New Code'.
2.  Write a concise, one-sentence summary of the change (e.g., 'A new endpoint /user-details/getUser was added' or 'The authentication method for /orders was updated').

Respond with a single JSON object containing two keys: ` + "`changed_code_snippet` and `change_summary`."

const validateUserTemplate = `Does the following code comply with this rule?

Rule: {{.Rule}}

Code:
` + "```" + `
{{.Code}}
` + "```" + `

Respond with 'Compliant' or 'Non-compliant', followed by a brief, one-sentence explanation.`

const reportUserTemplate = `Please generate a markdown report based on the following validation results for the provided code snippet.

## Code Under Review:
` + "```" + `
{{.Code}}
` + "```" + `

## Validation Findings:
{{.Findings}}

Structure the report with two main sections: '## Compliant Checks' and '## Non-compliant Issues'. If there are non-compliant issues, provide a '### Recommendations' section with suggested fixes.`

var (
	detectTmpl   = template.Must(template.New("detect").Parse(detectUserTemplate))
	validateTmpl = template.Must(template.New("validate").Parse(validateUserTemplate))
	reportTmpl   = template.Must(template.New("report").Parse(reportUserTemplate))
)

func render(t *template.Template, data any) (string, error) {
	var b strings.Builder
	if err := t.Execute(&b, data); err != nil {
		return "", err
	}
	return b.String(), nil
}

func detectPrompt(oldCode, newCode string) (string, error) {
	return render(detectTmpl, struct{ OldCode, NewCode string }{oldCode, newCode})
}

func validatePrompt(rule, code string) (string, error) {
	return render(validateTmpl, struct{ Rule, Code string }{rule, code})
}

func reportPrompt(code, findings string) (string, error) {
	return render(reportTmpl, struct{ Code, Findings string }{code, findings})
}
