package domain

// RoundKind identifies what an apportionment round did.
type RoundKind string

// Every round of the apportionment loop either awards one seat or
// eliminates the lowest-polling candidates.
const (
	// RoundAward means the leader received a seat.
	RoundAward RoundKind = "award"

	// RoundEliminate means the minority candidates were removed and their
	// ballots redistributed.
	RoundEliminate RoundKind = "eliminate"
)

// Round describes one iteration of the apportionment loop. Rounds are
// reported to the observer configured with WithRoundObserver.
type Round[C comparable] struct {
	// Number is the 1-based iteration index.
	Number int

	// Kind is RoundAward or RoundEliminate.
	Kind RoundKind

	// Quota is the vote count that guarantees a seat.
	Quota float64

	// Tally is the working tally at the start of the round.
	Tally map[C]float64

	// Leader is the candidate with the highest tally after tie-breaking.
	Leader C

	// TiedWith lists other candidates that shared the leader's tally.
	// Only populated for award rounds, where the tie decided the seat.
	TiedWith []C

	// Forced is true when the seat was awarded below quota because too few
	// votes remained for any rival to reach it.
	Forced bool

	// Eliminated lists the candidates removed in an elimination round.
	Eliminated []C

	// Transferred is the vote weight redistributed to surviving candidates
	// in an elimination round.
	Transferred float64

	// SeatsFilled is the number of seats awarded once the round completed.
	SeatsFilled int
}
