package domain

// LastActorLedger holds the most recent distinct keep-alive actors, most
// recent first. An actor that acts again is moved back to the front so that
// it occupies a single slot.
type LastActorLedger []string

// Push records actor as the most recent one and truncates the ledger to
// capacity entries.
func (l LastActorLedger) Push(actor string, capacity int) LastActorLedger {
	if capacity <= 0 {
		return LastActorLedger{}
	}

	next := make(LastActorLedger, 0, min(len(l)+1, capacity))
	next = append(next, actor)
	for _, a := range l {
		if len(next) >= capacity {
			break
		}
		if a == actor {
			continue
		}
		next = append(next, a)
	}
	return next
}

// Winners returns the first n actors of the ledger in rank order.
func (l LastActorLedger) Winners(n int) []string {
	if n > len(l) {
		n = len(l)
	}
	if n <= 0 {
		return nil
	}
	return append([]string{}, l[:n]...)
}

func (l LastActorLedger) Front() string {
	if len(l) == 0 {
		return ""
	}
	return l[0]
}
