// Package httputil provides retry helpers for registry HTTP clients.
//
// [Retry] runs an operation again after transient failures, doubling the
// delay each time. Only errors wrapped in [RetryableError] are retried, so a
// client decides per response what counts as transient:
//
//	err := httputil.Retry(ctx, 3, 100*time.Millisecond, func() error {
//	    resp, err := client.Do(req)
//	    if err != nil {
//	        return &httputil.RetryableError{Err: err}
//	    }
//	    defer resp.Body.Close()
//	    if httputil.RetryableStatus(resp.StatusCode) {
//	        return &httputil.RetryableError{Err: fmt.Errorf("status %d", resp.StatusCode)}
//	    }
//	    return nil
//	})
package httputil
