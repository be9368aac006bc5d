// Package evaluation implements the evaluation:<lang> stages. It re-checks
// that a stored translation lines up with the source cues, measures
// coverage, optionally asks an LLM to score a sample of pairs and writes a
// <lang>.eval.json report. Low scores are reported, never failed.
package evaluation
