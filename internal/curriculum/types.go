package curriculum

// ModuleFile is a module definition loaded from YAML.
type ModuleFile struct {
	ID    string     `yaml:"id"`
	Title string     `yaml:"title"`
	Order int        `yaml:"order"`
	Steps []StepFile `yaml:"steps"`
}

// StepFile is one step of a module. Quiz names the quiz bank of a quiz step.
type StepFile struct {
	ID    string `yaml:"id"`
	Kind  string `yaml:"kind"`
	Title string `yaml:"title"`
	Quiz  string `yaml:"quiz"`
}

// QuizFile is a quiz bank loaded from YAML.
type QuizFile struct {
	ID            string         `yaml:"id"`
	Title         string         `yaml:"title"`
	PassThreshold float64        `yaml:"pass_threshold"`
	Questions     []QuestionFile `yaml:"questions"`
}

// QuestionFile is one question. Which answer fields apply depends on Kind:
// mcq and image_mcq use Answer, select_all uses Answers, numeric uses
// Target and the optional Tolerance.
type QuestionFile struct {
	ID          string   `yaml:"id"`
	Kind        string   `yaml:"kind"`
	Prompt      string   `yaml:"prompt"`
	Concepts    []string `yaml:"concepts"`
	Explanation string   `yaml:"explanation"`
	Options     []string `yaml:"options"`
	Answer      string   `yaml:"answer"`
	Answers     []string `yaml:"answers"`
	Target      *float64 `yaml:"target"`
	Tolerance   *float64 `yaml:"tolerance"`
	Unit        string   `yaml:"unit"`
	ImageURL    string   `yaml:"image_url"`
	ImageAlt    string   `yaml:"image_alt"`
}
