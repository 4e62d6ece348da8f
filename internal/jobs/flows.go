package jobs

// Flow identifies the transition table a job follows.
type Flow string

const (
	FlowStandard Flow = "standard"
	FlowService  Flow = "service"
	FlowInquiry  Flow = "inquiry"
)

// FlowFor maps a start type to its flow. Archive imports formally belong to
// the standard flow but are read-only from creation.
func FlowFor(st StartType) Flow {
	switch st {
	case StartService:
		return FlowService
	case StartMeasureCustomer:
		return FlowInquiry
	default:
		return FlowStandard
	}
}

// InitialStatus is where a freshly created job starts.
func InitialStatus(st StartType) Status {
	switch st {
	case StartService:
		return StatusServiceSchedulePending
	case StartMeasureCustomer:
		return StatusCustomerFilesPending
	case StartArchive:
		return StatusClosed
	default:
		return StatusMeasurePending
	}
}

// transitions is the data-driven edge set per flow. The first target of each
// entry is the default "next" step used for auto-advance projection.
var transitions = map[Flow]map[Status][]Status{
	FlowStandard: {
		StatusMeasurePending:         {StatusMeasureScheduled},
		StatusMeasureScheduled:       {StatusMeasureDone},
		StatusMeasureDone:            {StatusPricing},
		StatusPricing:                {StatusPriceGiven},
		StatusPriceGiven:             {StatusAgreementInProgress, StatusNotAgreed},
		StatusNotAgreed:              {StatusPriceGiven},
		StatusAgreementInProgress:    {StatusAgreementDone},
		StatusAgreementDone:          {StatusProductionReady, StatusStockLater},
		StatusStockLater:             {StatusProductionReady},
		StatusProductionReady:        {StatusInProduction},
		StatusInProduction:           {StatusAssemblyReady, StatusDeliveryReadyKnockdown},
		StatusAssemblyReady:          {StatusAssemblyScheduled},
		StatusDeliveryReadyKnockdown: {StatusFinancePending},
		StatusAssemblyScheduled:      {StatusFinancePending},
		StatusFinancePending:         {StatusClosed},
	},
	FlowService: {
		StatusServiceSchedulePending: {StatusServiceScheduled},
		StatusServiceScheduled:       {StatusServiceInProgress},
		StatusServiceInProgress:      {StatusServicePaymentPending, StatusServiceContinuing},
		StatusServiceContinuing:      {StatusServiceInProgress},
		StatusServicePaymentPending:  {StatusServiceClosed},
	},
	FlowInquiry: {
		StatusCustomerFilesPending:  {StatusCustomerFilesUploaded},
		StatusCustomerFilesUploaded: {StatusPricing},
		StatusPricing:               {StatusPriceGiven, StatusInquiryOnHold},
		StatusInquiryOnHold:         {StatusPriceGiven, StatusInquiryRejected},
		StatusPriceGiven:            {StatusInquiryApproved, StatusInquiryRejected},
	},
}

// stageRank orders each flow's statuses for monotonicity checks. Branch
// alternatives share a rank; documented loop-backs (service continuing,
// rejection reactivation) are the only rank decreases allowed.
var stageRank = map[Flow]map[Status]int{
	FlowStandard: {
		StatusMeasurePending:         0,
		StatusMeasureScheduled:       1,
		StatusMeasureDone:            2,
		StatusPricing:                3,
		StatusPriceGiven:             4,
		StatusAgreementInProgress:    5,
		StatusNotAgreed:              5,
		StatusAgreementDone:          6,
		StatusStockLater:             7,
		StatusProductionReady:        7,
		StatusInProduction:           8,
		StatusAssemblyReady:          9,
		StatusDeliveryReadyKnockdown: 9,
		StatusAssemblyScheduled:      10,
		StatusFinancePending:         11,
		StatusClosed:                 12,
		StatusCancelled:              12,
	},
	FlowService: {
		StatusServiceSchedulePending: 0,
		StatusServiceScheduled:       1,
		StatusServiceInProgress:      2,
		StatusServiceContinuing:      2,
		StatusServicePaymentPending:  3,
		StatusServiceClosed:          4,
		StatusCancelled:              4,
	},
	FlowInquiry: {
		StatusCustomerFilesPending:  0,
		StatusCustomerFilesUploaded: 1,
		StatusPricing:               2,
		StatusPriceGiven:            3,
		StatusInquiryOnHold:         3,
		StatusInquiryApproved:       4,
		StatusInquiryRejected:       4,
		StatusCancelled:             4,
	},
}

// CanTransition reports whether from → to is an edge of the flow.
// Cancellation is allowed from any non-terminal status.
func CanTransition(flow Flow, from, to Status) bool {
	if to == StatusCancelled {
		_, known := stageRank[flow][from]
		return known && from != StatusCancelled
	}
	for _, target := range transitions[flow][from] {
		if target == to {
			return true
		}
	}
	return false
}

// DefaultNext returns the flow's default next step after status, or "".
func DefaultNext(flow Flow, status Status) Status {
	targets := transitions[flow][status]
	if len(targets) == 0 {
		return ""
	}
	return targets[0]
}

// Rank returns the status's position in the flow, -1 for unknown statuses.
func Rank(flow Flow, status Status) int {
	rank, ok := stageRank[flow][status]
	if !ok {
		return -1
	}
	return rank
}

// Stage is the coarse step shown to users, a projection of the status.
type Stage string

const (
	StageMeasure    Stage = "measure"
	StagePricing    Stage = "pricing"
	StageAgreement  Stage = "agreement"
	StageStock      Stage = "stock"
	StageProduction Stage = "production"
	StageAssembly   Stage = "assembly"
	StageFinance    Stage = "finance"
	StageDone       Stage = "done"

	StageServiceSchedule Stage = "service_schedule"
	StageServiceWork     Stage = "service_work"
	StageServicePayment  Stage = "service_payment"

	StageInquiryFiles    Stage = "inquiry_files"
	StageInquiryDecision Stage = "inquiry_decision"
)

var stageOf = map[Status]Stage{
	StatusMeasurePending:   StageMeasure,
	StatusMeasureScheduled: StageMeasure,
	StatusMeasureDone:      StageMeasure,

	StatusPricing:    StagePricing,
	StatusPriceGiven: StagePricing,

	StatusAgreementInProgress: StageAgreement,
	StatusNotAgreed:           StageAgreement,
	StatusAgreementDone:       StageAgreement,

	StatusStockLater: StageStock,

	StatusProductionReady: StageProduction,
	StatusInProduction:    StageProduction,

	StatusAssemblyReady:          StageAssembly,
	StatusDeliveryReadyKnockdown: StageAssembly,
	StatusAssemblyScheduled:      StageAssembly,

	StatusFinancePending: StageFinance,

	StatusClosed:    StageDone,
	StatusCancelled: StageDone,

	StatusServiceSchedulePending: StageServiceSchedule,
	StatusServiceScheduled:       StageServiceSchedule,
	StatusServiceInProgress:      StageServiceWork,
	StatusServiceContinuing:      StageServiceWork,
	StatusServicePaymentPending:  StageServicePayment,
	StatusServiceClosed:          StageDone,

	StatusCustomerFilesPending:  StageInquiryFiles,
	StatusCustomerFilesUploaded: StageInquiryFiles,
	StatusInquiryOnHold:         StageInquiryDecision,
	StatusInquiryApproved:       StageDone,
	StatusInquiryRejected:       StageDone,
}

// StageOf projects a status onto its user-visible stage.
func StageOf(flow Flow, status Status) Stage {
	if flow == FlowInquiry {
		switch status {
		case StatusPricing, StatusPriceGiven:
			return StageInquiryDecision
		}
	}
	return stageOf[status]
}
