package entities

import "github.com/google/uuid"

// EntityKind tags the closed set of structured entity variants. Cleanup and
// hard-delete logic iterate the registry by kind instead of hardcoding
// per-type branches; only the purge ordering below is fixed.
type EntityKind string

const (
	KindReceipt       EntityKind = "receipt"
	KindDocument      EntityKind = "document"
	KindInvoice       EntityKind = "invoice"
	KindContract      EntityKind = "contract"
	KindVoucher       EntityKind = "voucher"
	KindWarranty      EntityKind = "warranty"
	KindBankStatement EntityKind = "bank_statement"
	KindReturnPolicy  EntityKind = "return_policy"

	KindLineItem        EntityKind = "line_item"
	KindInvoiceLineItem EntityKind = "invoice_line_item"
	KindBankTransaction EntityKind = "bank_transaction"

	KindExtractionLink EntityKind = "extraction_link"
)

// ChildKinds are purged before ParentKinds; the extraction_link junction goes
// last. Foreign keys are not enforced at the DB level, the ordering is the
// only dependency guard.
var (
	ChildKinds  = []EntityKind{KindLineItem, KindInvoiceLineItem, KindBankTransaction}
	ParentKinds = []EntityKind{
		KindReceipt, KindDocument, KindInvoice, KindContract,
		KindVoucher, KindWarranty, KindBankStatement, KindReturnPolicy,
	}
)

// DeletedReason tags why a row was soft-deleted so hard-delete passes can
// filter to their own casualties.
const (
	DeletedReasonReprocess     = "reprocess"
	DeletedReasonUserDelete    = "user_delete"
	DeletedReasonAccountDelete = "account_delete"
)

// EntityRef identifies one structured entity across kinds.
type EntityRef struct {
	Kind EntityKind `json:"kind"`
	ID   uuid.UUID  `json:"id"`
}
