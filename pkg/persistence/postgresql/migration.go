package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			-- Create gallery_images table
			CREATE TABLE gallery_images (
				id VARCHAR(255) PRIMARY KEY,
				url TEXT NOT NULL,
				prompt TEXT NOT NULL DEFAULT '',
				workflow JSONB,
				created_at BIGINT NOT NULL
			);

			CREATE INDEX idx_gallery_images_created_at ON gallery_images(created_at DESC);
		`,
		2: `
			-- Create prompts table, one row per distinct text
			CREATE TABLE prompts (
				id VARCHAR(255) PRIMARY KEY,
				text TEXT NOT NULL UNIQUE,
				created_at BIGINT NOT NULL
			);

			CREATE INDEX idx_prompts_created_at ON prompts(created_at DESC);
		`,
	}
}
