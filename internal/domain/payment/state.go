package payment

// recordState implements the state pattern for the payment attempt lifecycle.
// Each state decides how it reacts to settlement observations, expiry checks,
// cancellation, and refunds.
type recordState interface {
	Status() Status
	OnObservation(r *Record, obs Observation) (recordState, error)
	OnExpire(r *Record) (recordState, error)
	OnCancel(r *Record) (recordState, error)
	OnRefund(r *Record) (recordState, error)
}

func stateFor(s Status) recordState {
	switch s {
	case StatusPending:
		return pendingState{}
	case StatusProcessing:
		return processingState{}
	case StatusCompleted:
		return completedState{}
	case StatusUnderpaid:
		return underpaidState{}
	case StatusFailed:
		return failedState{}
	case StatusCancelled:
		return terminalState{status: StatusCancelled}
	case StatusExpired:
		return terminalState{status: StatusExpired}
	case StatusRefunded:
		return terminalState{status: StatusRefunded}
	default:
		return pendingState{}
	}
}

// evaluate picks the state an active record lands in after absorbing an
// observation. Shared by pending, processing, underpaid, and failed.
func evaluate(r *Record, obs Observation, fallback recordState) recordState {
	if r.settled() {
		return completedState{}
	}
	if obs.RemoteStatus == RemoteFailed {
		return failedState{}
	}
	if r.short() {
		return underpaidState{}
	}
	if r.Confirmations > 0 || r.PaidAmount.IsPositive() || obs.RemoteStatus == RemoteApproved {
		return processingState{}
	}
	return fallback
}

type pendingState struct{}

func (pendingState) Status() Status { return StatusPending }

func (pendingState) OnObservation(r *Record, obs Observation) (recordState, error) {
	r.absorb(obs)
	return evaluate(r, obs, pendingState{}), nil
}

func (pendingState) OnExpire(r *Record) (recordState, error) {
	if r.PaidAmount.IsPositive() {
		return underpaidState{}, nil
	}
	return terminalState{status: StatusExpired}, nil
}

func (pendingState) OnCancel(*Record) (recordState, error) {
	return terminalState{status: StatusCancelled}, nil
}

func (pendingState) OnRefund(*Record) (recordState, error) {
	return nil, ErrInvalidStateTransition
}

type processingState struct{}

func (processingState) Status() Status { return StatusProcessing }

func (processingState) OnObservation(r *Record, obs Observation) (recordState, error) {
	r.absorb(obs)
	return evaluate(r, obs, processingState{}), nil
}

func (processingState) OnExpire(r *Record) (recordState, error) {
	if r.PaidAmount.IsPositive() {
		return underpaidState{}, nil
	}
	return terminalState{status: StatusExpired}, nil
}

func (processingState) OnCancel(*Record) (recordState, error) {
	// money may already be in flight
	return nil, ErrCancelNotAllowed
}

func (processingState) OnRefund(*Record) (recordState, error) {
	return nil, ErrInvalidStateTransition
}

type underpaidState struct{}

func (underpaidState) Status() Status { return StatusUnderpaid }

func (underpaidState) OnObservation(r *Record, obs Observation) (recordState, error) {
	// late funds can still settle an underpaid attempt
	r.absorb(obs)
	if r.settled() {
		return completedState{}, nil
	}
	return underpaidState{}, nil
}

func (underpaidState) OnExpire(*Record) (recordState, error) {
	return underpaidState{}, nil
}

func (underpaidState) OnCancel(*Record) (recordState, error) {
	return nil, ErrCancelNotAllowed
}

func (underpaidState) OnRefund(*Record) (recordState, error) {
	return nil, ErrInvalidStateTransition
}

type failedState struct{}

func (failedState) Status() Status { return StatusFailed }

func (failedState) OnObservation(r *Record, obs Observation) (recordState, error) {
	// a retried gateway capture may still succeed
	r.absorb(obs)
	if r.settled() {
		return completedState{}, nil
	}
	return failedState{}, nil
}

func (failedState) OnExpire(*Record) (recordState, error) {
	return failedState{}, nil
}

func (failedState) OnCancel(*Record) (recordState, error) {
	return nil, ErrCancelNotAllowed
}

func (failedState) OnRefund(*Record) (recordState, error) {
	return nil, ErrInvalidStateTransition
}

type completedState struct{}

func (completedState) Status() Status { return StatusCompleted }

func (completedState) OnObservation(r *Record, _ Observation) (recordState, error) {
	// immutable; late events are audit-logged by the caller
	return completedState{}, nil
}

func (completedState) OnExpire(*Record) (recordState, error) {
	return completedState{}, nil
}

func (completedState) OnCancel(*Record) (recordState, error) {
	return nil, ErrInvalidStateTransition
}

func (completedState) OnRefund(*Record) (recordState, error) {
	return terminalState{status: StatusRefunded}, nil
}

// terminalState covers cancelled, expired, and refunded: nothing moves a
// record out of them.
type terminalState struct{ status Status }

func (t terminalState) Status() Status { return t.status }

func (t terminalState) OnObservation(*Record, Observation) (recordState, error) {
	return t, nil
}

func (t terminalState) OnExpire(*Record) (recordState, error) {
	return t, nil
}

func (t terminalState) OnCancel(*Record) (recordState, error) {
	return nil, ErrInvalidStateTransition
}

func (t terminalState) OnRefund(*Record) (recordState, error) {
	return nil, ErrInvalidStateTransition
}
