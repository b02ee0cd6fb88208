/*
 * Copyright 2025 SREDiag Authors
 *
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

package lifecycle

import (
	"errors"

	"go.uber.org/zap"

	"github.com/srediag/shm-counter/pkg/shm"
)

// Close detaches the local handles. The named objects survive. Calling Close
// more than once is a no-op.
func (r *Resources) Close() error {
	if r == nil || r.closed {
		return nil
	}
	r.closed = true
	return r.Segment.Close()
}

// Teardown closes the handles and, for the role owning teardown, destroys the
// named objects. Every failure is logged and returned for inspection but none is
// fatal: the objects may already be gone, and running Teardown twice is safe.
func Teardown(r *Resources) error {
	if r == nil {
		return nil
	}
	log := r.opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	var errs []error
	if err := r.Close(); err != nil {
		log.Warn("close error", zap.String("role", r.Role.String()), zap.Error(err))
		errs = append(errs, err)
	}
	if r.Role.OwnsTeardown() {
		if err := shm.DestroyCounter(r.opts.Dir, r.opts.CounterName); err != nil {
			log.Warn("destroy counter", zap.Error(err))
			errs = append(errs, err)
		}
		if err := shm.DestroyMutex(r.opts.Dir, r.opts.MutexName); err != nil {
			log.Warn("destroy mutex", zap.Error(err))
			errs = append(errs, err)
		}
		if len(errs) == 0 {
			log.Info("named resources removed",
				zap.String("counter", r.opts.CounterName),
				zap.String("mutex", r.opts.MutexName))
		}
	}
	if r.opts.Metrics != nil && len(errs) > 0 {
		r.opts.Metrics.Teardown.WithLabelValues(r.Role.String()).Add(float64(len(errs)))
	}
	return errors.Join(errs...)
}
