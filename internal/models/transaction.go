package models

// Transaction statuses reported by a node for a block item.
const (
	TxStatusReceived  = "received"
	TxStatusCommitted = "committed"
	TxStatusFinalized = "finalized"
	TxStatusAbsent    = "absent"
)

const (
	InvokeSuccess = "success"
	InvokeFailure = "failure"
)

const AccountTransactionUpdate = "Update"

type ContractAddress struct {
	Index    uint64 `json:"index"`
	Subindex uint64 `json:"subindex"`
}

// UpdateContractPayload is what the wallet signs for a contract update.
type UpdateContractPayload struct {
	Amount            uint64          `json:"amount"` // microCCD
	Address           ContractAddress `json:"address"`
	ReceiveName       string          `json:"receiveName"`
	MaxContractEnergy uint64          `json:"maxContractExecutionEnergy"`
	Parameter         string          `json:"parameter,omitempty"` // hex
}

type TransactionRequest struct {
	Account         string                `json:"account"`
	TransactionType string                `json:"transactionType"`
	Payload         UpdateContractPayload `json:"payload"`
}

type BlockItemStatus struct {
	Status string `json:"status"`
}

type InvokeContractRequest struct {
	Contract  ContractAddress `json:"contract"`
	Method    string          `json:"method"`
	Invoker   string          `json:"invoker,omitempty"`
	Parameter string          `json:"parameter"` // hex
}

type InvokeContractResult struct {
	Tag         string `json:"tag"`
	ReturnValue string `json:"returnValue,omitempty"` // hex
	Reason      string `json:"reason,omitempty"`
}
