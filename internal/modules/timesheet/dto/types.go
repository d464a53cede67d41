package dto

type DeltaInput struct {
	Project string
	Job     string
	Seconds int64
}

type ApplyDeltasInput struct {
	Deltas []DeltaInput
}

type ApplyDeltasOutput struct {
	Applied int
	Created int
}

type EntryOutput struct {
	Project     string
	Job         string
	Start       int64
	Accumulated int64
	Marker      int64
	Pending     int64
	Status      string
	Note        string
}

type AttributeOutput struct {
	Elapsed int64
}

type SheetOutput struct {
	Path      string
	Section   string
	Entries   []EntryOutput
	Malformed int
}

type ReportRowOutput struct {
	Host        string
	User        string
	Project     string
	Job         string
	Accumulated int64
	Pending     int64
	Status      string
}

type ReportOutput struct {
	Rows []ReportRowOutput
}
