// Package generation turns a brand persona and a problem statement into
// channel content by calling a language model.
//
// A Service assembles the prompt, calls its Model and parses the JSON plan
// the model returns. Models sometimes wrap the JSON in prose or code
// fences, so when the reply does not parse as a whole the first {...} block
// is tried. If that fails too the model is called once more; a second
// unparsable reply fails with ErrUnparsableResponse.
//
// AnthropicModel is the production Model, a thin client for the Anthropic
// Messages API.
package generation
