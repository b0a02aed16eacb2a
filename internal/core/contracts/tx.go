package contracts

import "context"

// TxManager runs fn inside one storage transaction. The transaction rides the
// context handed to fn; repository calls made with that context join it.
type TxManager interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}
