package signals

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// defaultSkills 内置技能词表
var defaultSkills = []string{
	// Programming Languages
	"Python", "Java", "JavaScript", "C++", "C#", "Ruby", "PHP", "Go", "Rust", "Swift",
	"Kotlin", "Scala", "R", "MATLAB", "SQL", "HTML", "CSS", "TypeScript", "ABAP",
	"Perl", "PowerShell", "Bash", "Shell", "VBA", "Objective-C", "Dart", "Lua",

	// Frameworks & Libraries
	"React", "Angular", "Vue.js", "Node.js", "Django", "Flask", "Spring", "Laravel",
	"Express.js", "Redux", "jQuery", "Bootstrap", "Tailwind CSS", "Next.js", "Nuxt.js",
	"Svelte", "Ember.js", "Backbone.js", "ASP.NET", "Spring Boot", "Hibernate",

	// Databases
	"MySQL", "PostgreSQL", "MongoDB", "Oracle", "SQLite", "Redis", "Cassandra",
	"DynamoDB", "Firebase", "Elasticsearch", "Neo4j", "CouchDB", "MariaDB",

	// Cloud & DevOps
	"AWS", "Azure", "Google Cloud", "Docker", "Kubernetes", "Jenkins", "Git",
	"GitHub", "GitLab", "CI/CD", "Terraform", "Ansible", "Chef", "Puppet",
	"Vagrant", "Prometheus", "Grafana", "ELK Stack", "Nginx", "Apache",

	// Data Science & ML
	"Machine Learning", "Deep Learning", "TensorFlow", "PyTorch", "Pandas",
	"NumPy", "Scikit-learn", "Matplotlib", "Seaborn", "Jupyter", "Keras",
	"OpenCV", "NLTK", "Spark", "Hadoop", "Tableau", "Power BI",

	// Mobile Development
	"iOS", "Android", "React Native", "Flutter", "Xamarin", "Ionic",

	// Testing
	"Jest", "Selenium", "Cypress", "JUnit", "PyTest", "Mocha", "Chai",

	// Soft Skills
	"Leadership", "Communication", "Problem Solving", "Team Work", "Project Management",
	"Analytical Thinking", "Creativity", "Adaptability", "Time Management", "Critical Thinking",
}

// Vocabulary 静态技能词表，构造后只读
type Vocabulary struct {
	Version string
	skills  []string
	lower   []string
}

// vocabularyFile 词表文件格式
type vocabularyFile struct {
	Version        string   `yaml:"version"`
	ReplaceDefault bool     `yaml:"replace_default"` // true 时不合并内置词表
	Skills         []string `yaml:"skills"`
}

// NewVocabulary 用给定技能列表构造词表，去重并保留首次出现顺序
func NewVocabulary(version string, skills []string) *Vocabulary {
	v := &Vocabulary{Version: version}
	seen := make(map[string]bool, len(skills))
	for _, s := range skills {
		s = strings.TrimSpace(s)
		key := strings.ToLower(s)
		if s == "" || seen[key] {
			continue
		}
		seen[key] = true
		v.skills = append(v.skills, s)
		v.lower = append(v.lower, key)
	}
	return v
}

// DefaultVocabulary 内置词表
func DefaultVocabulary() *Vocabulary {
	return NewVocabulary("builtin", defaultSkills)
}

// LoadVocabulary 从YAML文件加载词表；默认与内置词表合并
func LoadVocabulary(path string) (*Vocabulary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取技能词表失败: %w", err)
	}

	var f vocabularyFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("解析技能词表失败: %w", err)
	}
	if len(f.Skills) == 0 && f.ReplaceDefault {
		return nil, fmt.Errorf("技能词表为空: %s", path)
	}

	skills := f.Skills
	if !f.ReplaceDefault {
		skills = append(append([]string{}, defaultSkills...), f.Skills...)
	}
	version := f.Version
	if version == "" {
		version = path
	}
	return NewVocabulary(version, skills), nil
}

// Skills 返回词表副本
func (v *Vocabulary) Skills() []string {
	return append([]string(nil), v.skills...)
}

// Len 词表大小
func (v *Vocabulary) Len() int {
	return len(v.skills)
}

// Search 返回包含查询串的技能（不区分大小写）
func (v *Vocabulary) Search(query string) []string {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil
	}
	var out []string
	for i, l := range v.lower {
		if strings.Contains(l, q) {
			out = append(out, v.skills[i])
		}
	}
	return out
}

// Match 返回在文本中以整词形式出现的技能，按词表顺序
func (v *Vocabulary) Match(text string) []string {
	lowerText := strings.ToLower(text)
	var found []string
	for i, l := range v.lower {
		if containsWord(lowerText, l) {
			found = append(found, v.skills[i])
		}
	}
	return found
}
