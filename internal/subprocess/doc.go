// Package subprocess supervises the interactive llama-cli process.
//
// A Supervisor starts the process on demand, sends the initialization
// prompt once per process generation, and restarts the process after it
// dies. Two pumps read stdout and stderr line by line for the lifetime of a
// generation: stdout lines are framed into response units and pushed to a
// channel.ResponseChannel, stderr lines become diagnostics.
//
// Terminate closes the pipe read ends so blocked reads return immediately,
// then escalates from end-of-input to SIGTERM to SIGKILL with bounded waits.
package subprocess
