/*
Package config loads the settings used to open a checkpoint store.

# Overview

Store is a flat settings struct. It starts from Default, is layered with a
YAML or JSON file and then with CKPT_* environment variables, and is
checked with Validate:

	st, err := config.FromFile("ckpt.yaml")
	if err != nil {
	    log.Fatal(err)
	}
	st = st.ApplyEnv(os.LookupEnv)
	if err := st.Validate(); err != nil {
	    log.Fatal(err)
	}
	saver, closeFn, err := st.Open(logger)

# File Format

	backend: file          # file, sqlite or memory
	root: ./checkpoint-file-store
	delimiter: "$$"
	format: json           # json or yaml
	sqlite_path: ./checkpoints.db
	log_level: info
	log_format: text
	metrics: false
	tracing: false

Unknown keys are ignored. Values of the wrong type fall back to the
current setting.

# Environment

Each key maps to CKPT_<KEY> in upper case, e.g. CKPT_ROOT and
CKPT_SQLITE_PATH. Boolean variables accept the strconv.ParseBool forms.
*/
package config
