package delivery

// Sender hands a reset code to the user over an out-of-band channel
// (email, SMS). Send blocks until the channel accepts or refuses the
// message; the reset service bounds the call with a timeout.
type Sender interface {
	Send(identity, code string) error
}
