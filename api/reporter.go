package api

// Reporter prints the human-readable progress of one participant.
type Reporter interface {
	Started(target int32)
	Wrote(value int32)
	Finished()
}
