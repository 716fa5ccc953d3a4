/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package datacontext

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"

	"github.com/tomoncle/nerv/database"
	"github.com/tomoncle/nerv/types"
)

// Transaction is the active transaction of a data context. While it is
// active every query and save of the context runs inside it.
type Transaction interface {
	Commit() error
	Rollback() error
}

type transaction struct {
	tx    bun.Tx
	owner interface{ release(*transaction) }
	done  bool
}

func (t *transaction) Commit() error {
	if t.done {
		return fmt.Errorf("%w: transaction already finished", types.ErrInvalidOperation)
	}
	t.done = true
	t.owner.release(t)
	return database.WrapError("commit", t.tx.Commit())
}

func (t *transaction) Rollback() error {
	if t.done {
		return fmt.Errorf("%w: transaction already finished", types.ErrInvalidOperation)
	}
	t.done = true
	t.owner.release(t)
	return database.WrapError("rollback", t.tx.Rollback())
}

// BeginTransaction starts a transaction, or returns the active one. The
// transaction outlives ctx: cancelling ctx does not roll it back.
func (dc *dataContext[U]) BeginTransaction(ctx context.Context) (Transaction, error) {
	if err := dc.checkOpen(); err != nil {
		return nil, err
	}
	if err := types.CheckContext(ctx); err != nil {
		return nil, err
	}
	if dc.tx != nil {
		return dc.tx, nil
	}
	tx, err := dc.db.BeginTx(context.WithoutCancel(ctx), nil)
	if err != nil {
		return nil, database.WrapError("begin", err)
	}
	dc.tx = &transaction{tx: tx, owner: dc}
	dc.logger.Debug("Transaction started")
	return dc.tx, nil
}

// Transaction returns the active transaction or nil.
func (dc *dataContext[U]) Transaction() Transaction {
	if dc.tx == nil {
		return nil
	}
	return dc.tx
}

func (dc *dataContext[U]) release(t *transaction) {
	if dc.tx == t {
		dc.tx = nil
	}
}
