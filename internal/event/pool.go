package event

import (
	"sync"
)

// commandPool provides sync.Pool for command allocation on the request path.
//
// Usage:
//
//	cmd := AcquireCommand()
//	cmd.Kind = CmdPlaceBet
//	// ... submit and wait on cmd.Reply ...
//	ReleaseCommand(cmd)  // Only after the reply was received
var commandPool = sync.Pool{
	New: func() interface{} {
		return &Command{Reply: make(chan Result, 1)}
	},
}

// AcquireCommand gets a Command from the pool.
// The returned command has zero values and a buffered Reply channel.
func AcquireCommand() *Command {
	return commandPool.Get().(*Command)
}

// ReleaseCommand returns a Command to the pool.
// Commands whose reply was never received must not be released.
func ReleaseCommand(cmd *Command) {
	if cmd == nil {
		return
	}
	reply := cmd.Reply
	select {
	case <-reply:
	default:
	}
	*cmd = Command{Reply: reply}

	commandPool.Put(cmd)
}

// Warmup pre-allocates commands to reduce GC pressure at startup.
// It acquires and releases a batch of commands.
func Warmup() {
	const batchSize = 256

	cmds := make([]*Command, 0, batchSize)
	for i := 0; i < batchSize; i++ {
		cmds = append(cmds, AcquireCommand())
	}
	for _, cmd := range cmds {
		ReleaseCommand(cmd)
	}
}
