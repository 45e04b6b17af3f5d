package domain

// FilePriority is the download priority of one logical file. Handles vote for
// a priority and the file runs at the highest vote.
type FilePriority int

const (
	PriorityIgnore FilePriority = -1 // Do not download.
	PriorityLow    FilePriority = 0
	PriorityNormal FilePriority = 1
	PriorityHigh   FilePriority = 2
)

func (p FilePriority) String() string {
	switch p {
	case PriorityIgnore:
		return "ignore"
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	default:
		return "unknown"
	}
}

// MaxPriority resolves a set of optional votes. Nil votes are skipped; with no
// votes at all the file is ignored.
func MaxPriority(votes ...*FilePriority) FilePriority {
	result := PriorityIgnore
	for _, v := range votes {
		if v != nil && *v > result {
			result = *v
		}
	}
	return result
}
