package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE automation_flows (
				id TEXT PRIMARY KEY,
				tenant_id TEXT NOT NULL,
				name TEXT NOT NULL,
				status VARCHAR(20) NOT NULL CHECK (status IN ('active', 'paused', 'draft', 'archived')),
				conditions JSONB,
				blocks JSONB NOT NULL DEFAULT '[]',
				run_count BIGINT NOT NULL DEFAULT 0,
				last_run BIGINT,
				created_at BIGINT NOT NULL,
				updated_at BIGINT NOT NULL
			);

			CREATE INDEX idx_automation_flows_tenant_status ON automation_flows(tenant_id, status);

			CREATE TABLE automation_queue (
				id TEXT PRIMARY KEY,
				tenant_id TEXT NOT NULL,
				flow_id TEXT NOT NULL,
				trigger_event_id TEXT NOT NULL,
				event_data JSONB NOT NULL DEFAULT '{}',
				context_payload JSONB NOT NULL DEFAULT '{}',
				block_index INTEGER NOT NULL DEFAULT 0,
				execute_at BIGINT NOT NULL,
				status VARCHAR(20) NOT NULL CHECK (status IN ('pending', 'processing', 'completed', 'dead_letter')),
				attempt_count INTEGER NOT NULL DEFAULT 0,
				last_error TEXT NOT NULL DEFAULT '',
				note TEXT NOT NULL DEFAULT '',
				locked_by TEXT NOT NULL DEFAULT '',
				locked_until BIGINT NOT NULL DEFAULT 0,
				created_at BIGINT NOT NULL,
				updated_at BIGINT NOT NULL
			);

			CREATE UNIQUE INDEX uq_automation_queue_event ON automation_queue(flow_id, trigger_event_id);
			CREATE INDEX idx_automation_queue_due ON automation_queue(status, execute_at);

			CREATE TABLE execution_runs (
				id TEXT PRIMARY KEY,
				flow_id TEXT NOT NULL,
				trigger_event_id TEXT NOT NULL,
				tenant_id TEXT NOT NULL,
				queue_item_id TEXT NOT NULL DEFAULT '',
				status VARCHAR(20) NOT NULL CHECK (status IN ('claimed', 'success', 'failed', 'skipped')),
				attempt INTEGER NOT NULL DEFAULT 1,
				trace JSONB NOT NULL DEFAULT '[]',
				error TEXT NOT NULL DEFAULT '',
				started_at BIGINT NOT NULL,
				completed_at BIGINT,
				duration_ms BIGINT NOT NULL DEFAULT 0,
				UNIQUE (flow_id, trigger_event_id, tenant_id)
			);

			CREATE INDEX idx_execution_runs_tenant_started ON execution_runs(tenant_id, started_at);

			CREATE TABLE execution_logs (
				id TEXT PRIMARY KEY,
				flow_id TEXT NOT NULL,
				tenant_id TEXT NOT NULL,
				queue_item_id TEXT NOT NULL DEFAULT '',
				trigger_event_id TEXT NOT NULL,
				status VARCHAR(20) NOT NULL,
				trace JSONB NOT NULL DEFAULT '[]',
				duration_ms BIGINT NOT NULL DEFAULT 0,
				error TEXT NOT NULL DEFAULT '',
				created_at BIGINT NOT NULL
			);

			CREATE INDEX idx_execution_logs_flow ON execution_logs(flow_id, created_at);
		`,
		2: `
			CREATE TABLE tenant_members (
				user_id TEXT NOT NULL,
				tenant_id TEXT NOT NULL,
				created_at BIGINT NOT NULL,
				PRIMARY KEY (user_id, tenant_id)
			);

			CREATE TABLE notifications (
				id TEXT PRIMARY KEY,
				tenant_id TEXT NOT NULL,
				user_id TEXT NOT NULL DEFAULT '',
				title TEXT NOT NULL,
				message TEXT NOT NULL,
				link TEXT NOT NULL DEFAULT '',
				data JSONB NOT NULL DEFAULT '{}',
				created_at BIGINT NOT NULL
			);

			CREATE INDEX idx_notifications_tenant ON notifications(tenant_id, created_at);

			CREATE TABLE jobs (
				id TEXT PRIMARY KEY,
				tenant_id TEXT NOT NULL,
				title TEXT NOT NULL,
				status TEXT NOT NULL,
				client_id TEXT NOT NULL DEFAULT '',
				data JSONB NOT NULL DEFAULT '{}',
				created_at BIGINT NOT NULL,
				updated_at BIGINT NOT NULL
			);

			CREATE INDEX idx_jobs_tenant_status ON jobs(tenant_id, status);
		`,
		3: `
			CREATE TABLE breaker_tenants (
				tenant_id TEXT PRIMARY KEY,
				touched_at BIGINT NOT NULL
			);

			CREATE TABLE breaker_hits (
				tenant_id TEXT NOT NULL,
				member TEXT NOT NULL,
				recorded_at BIGINT NOT NULL,
				PRIMARY KEY (tenant_id, member)
			);

			CREATE INDEX idx_breaker_hits_window ON breaker_hits(tenant_id, recorded_at);
		`,
	}
}
