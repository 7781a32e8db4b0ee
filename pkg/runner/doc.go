/*
Package runner drives authentications from a terminal and cleans user input.

SanitizeInput and SanitizeAnswers enforce a size limit (AUTHTREE_MAX_INPUT_SIZE,
4KB by default), reject invalid UTF-8 and strip control characters before
answers reach any node.

The Runner loops over pending nodes, prompting for their callbacks until the
flow completes. With WithInterrupts, Ctrl+C stops it with ErrInterrupted:

	r := runner.New(advance, runner.WithInterrupts())
	result, err := r.Run(ctx)
*/
package runner
