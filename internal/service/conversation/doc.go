// Package conversation implements the conversation state machine.
//
// The service owns every status and handled_by transition of a support
// conversation and is the only writer of conversation messages. It depends
// on repository interfaces defined in this package and never imports the
// HTTP layer.
//
// Repository implementations live in repository/postgres/.
package conversation
