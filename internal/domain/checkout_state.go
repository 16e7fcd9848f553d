package domain

type CheckoutState string

const (
	CheckoutLoading    CheckoutState = "LOADING"
	CheckoutReady      CheckoutState = "READY"
	CheckoutConfirming CheckoutState = "CONFIRMING"
	CheckoutCompleted  CheckoutState = "COMPLETED"
	CheckoutRejected   CheckoutState = "REJECTED"
)

var checkoutTransitions = map[CheckoutState][]CheckoutState{
	CheckoutLoading:    {CheckoutReady, CheckoutRejected},
	CheckoutReady:      {CheckoutReady, CheckoutConfirming},
	CheckoutConfirming: {CheckoutReady, CheckoutCompleted, CheckoutRejected},
	CheckoutRejected:   {CheckoutReady, CheckoutConfirming},
}

func CanTransitionTo(from, to CheckoutState) bool {
	for _, s := range checkoutTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func (s CheckoutState) IsTerminal() bool {
	return s == CheckoutCompleted
}

// String representation (for logging)
func (s CheckoutState) String() string {
	return string(s)
}
