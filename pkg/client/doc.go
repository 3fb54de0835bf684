/*
Package client provides a Go client library for the Strongroom HTTP API.

The client wraps the /v2 REST surface with typed methods, bearer-token
authentication and structured errors. Response bodies decode into the same
pkg/types structs the server serializes, so callers never handle raw JSON.

# Usage

Creating a client and enqueueing a reconciliation:

	c := client.New("http://localhost:8080", client.WithToken(jwt))

	job, err := c.Reconcile(ctx, "0xabc...", "ethereum", client.ReconcileRequest{})
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("job %s is %s\n", job.ID, job.Status)

Driving a workflow through its user-facing transitions:

	wf, err := c.CreateWorkflow(ctx, client.CreateWorkflowInput{
		VaultID:        "vault-1",
		ChainAlias:     "ethereum",
		MarshalledHex:  "0x02f87083...",
		OrganisationID: "org-1",
		CreatedBy:      types.CreatedBy{ID: "user-1", Type: types.CreatedByUser},
	})
	if err != nil {
		log.Fatal(err)
	}

	wf, err = c.ReviewWorkflow(ctx, wf.ID)
	wf, err = c.ConfirmWorkflow(ctx, wf.ID)

# Error handling

Every non-2xx response becomes an *APIError carrying the HTTP status and
the server's machine-readable code:

	_, err := c.GetJob(ctx, id)
	var apiErr *client.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case "NOT_FOUND":
			// job was deleted or never existed
		case "CONCURRENT_MODIFICATION":
			// apiErr.Retryable is true; replay the call
		}
	}

Transport failures (connection refused, timeouts) return wrapped errors
that do not match *APIError.

# Thread safety

A Client holds no mutable state and is safe for concurrent use. Reuse one
instance per process; the underlying http.Client pools connections.
*/
package client
