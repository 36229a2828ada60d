package radio

// Driver is the command contract of an SX126x-class radio. Implementations
// own the register and bus level details; every command reports a Status
// and never blocks waiting for the radio to finish. Completion is reported
// later as an interrupt, decoded into Events.
type Driver interface {
	ApplyModulationParams(params ModulationParams) Status
	ApplyCadParams(params CadParams) Status
	StartCad() Status
	StartReceive(timeoutTicks uint32) Status

	// ConvertMillisecondsToTicks converts a timeout into device timer steps
	ConvertMillisecondsToTicks(ms uint32) uint32

	ClearPendingInterrupts()
	ConfigureInterruptSources(enabled IRQMask)

	// ReadReceivedPayload copies the last received frame into buf and
	// returns the number of bytes written (at most len(buf))
	ReadReceivedPayload(buf []byte) (int, Status)

	PreReceiveHousekeeping()
	PostReceiveHousekeeping()
}
