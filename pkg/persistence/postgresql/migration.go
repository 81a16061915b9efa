package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			-- Automations and their per-subscriber progress
			CREATE TABLE automations (
				id VARCHAR(255) PRIMARY KEY,
				user_id VARCHAR(255) NOT NULL,
				name VARCHAR(255) NOT NULL,
				enabled BOOLEAN NOT NULL DEFAULT false,
				status VARCHAR(20) NOT NULL CHECK (status IN ('ACTIVE', 'INACTIVE', 'DRAFT')),
				trigger_id VARCHAR(255) NOT NULL,
				trigger_type VARCHAR(255) NOT NULL,
				trigger_params JSONB,
				nodes JSONB NOT NULL DEFAULT '{}',
				editor_data JSONB NOT NULL DEFAULT '{}',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_automations_trigger_type ON automations(trigger_type);
			CREATE INDEX idx_automations_user_id ON automations(user_id);

			CREATE TABLE automation_executions (
				automation_id VARCHAR(255) NOT NULL,
				subscriber_id VARCHAR(255) NOT NULL,
				current_node_id VARCHAR(255) NOT NULL DEFAULT '',
				status VARCHAR(20) NOT NULL CHECK (status IN ('ACTIVE', 'PAUSED', 'COMPLETED', 'FAILED')),
				resume_at TIMESTAMP WITH TIME ZONE,
				context JSONB,
				error TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				PRIMARY KEY (automation_id, subscriber_id)
			);

			CREATE INDEX idx_automation_executions_due ON automation_executions(status, resume_at);

			CREATE TABLE action_logs (
				id VARCHAR(255) PRIMARY KEY,
				automation_id VARCHAR(255) NOT NULL,
				node_id VARCHAR(255) NOT NULL,
				subscriber_id VARCHAR(255) NOT NULL,
				status VARCHAR(20) NOT NULL CHECK (status IN ('success', 'failure')),
				input JSONB,
				output JSONB,
				error TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_action_logs_automation ON action_logs(automation_id, created_at DESC);
		`,
		2: `
			-- Email send records and the subscriber directory view
			CREATE TABLE send_records (
				id VARCHAR(255) PRIMARY KEY,
				automation_id VARCHAR(255) NOT NULL,
				node_id VARCHAR(255) NOT NULL,
				subscriber_id VARCHAR(255) NOT NULL,
				status VARCHAR(20) NOT NULL CHECK (status IN ('pending', 'sent', 'failed')),
				open_count INTEGER NOT NULL DEFAULT 0,
				click_count INTEGER NOT NULL DEFAULT 0,
				error TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_send_records_key ON send_records(automation_id, node_id, subscriber_id, created_at DESC);

			CREATE TABLE subscribers (
				id VARCHAR(255) PRIMARY KEY,
				user_id VARCHAR(255) NOT NULL,
				email VARCHAR(320) NOT NULL,
				first_name VARCHAR(255) NOT NULL DEFAULT '',
				last_name VARCHAR(255) NOT NULL DEFAULT '',
				lists JSONB,
				custom_fields JSONB
			);

			CREATE INDEX idx_subscribers_user_id ON subscribers(user_id);
		`,
		3: `
			-- Insertion order breaks created_at ties when picking the latest send
			ALTER TABLE send_records ADD COLUMN seq BIGSERIAL;

			DROP INDEX idx_send_records_key;
			CREATE INDEX idx_send_records_key ON send_records(automation_id, node_id, subscriber_id, created_at DESC, seq DESC);
		`,
	}
}
