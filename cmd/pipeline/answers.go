package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"resume-pipeline/internal/applications"
)

// answersFile is the YAML layout accepted by --answers:
//
//	answers:
//	  q1: About 1,200 merchants
//	  q2: Weekly blameless reviews
type answersFile struct {
	Answers map[string]string `yaml:"answers"`
}

func loadAnswers(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return parseAnswers(f)
}

func parseAnswers(r io.Reader) (map[string]string, error) {
	var file answersFile
	if err := yaml.NewDecoder(r).Decode(&file); err != nil {
		if err == io.EOF {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("parse answers: %w", err)
	}
	out := make(map[string]string, len(file.Answers))
	for id, text := range file.Answers {
		if text = strings.TrimSpace(text); text != "" {
			out[strings.TrimSpace(id)] = text
		}
	}
	return out, nil
}

// collectAnswers takes answers from provided first and prompts on in for the rest.
// Optional questions may be skipped with an empty line; required ones are asked again.
func collectAnswers(questions []applications.Question, provided map[string]string, interactive bool, in io.Reader, out io.Writer) ([]applications.Answer, error) {
	scanner := bufio.NewScanner(in)
	var answers []applications.Answer
	for _, q := range questions {
		if text, ok := provided[q.ID]; ok {
			answers = append(answers, applications.Answer{QuestionID: q.ID, Text: text})
			continue
		}
		if !interactive {
			if q.Required {
				return nil, fmt.Errorf("question %s is required and has no answer", q.ID)
			}
			continue
		}
		for {
			marker := "optional"
			if q.Required {
				marker = "required"
			}
			fmt.Fprintf(out, "[%s, %s] %s\n> ", q.ID, marker, q.Text)
			if !scanner.Scan() {
				if err := scanner.Err(); err != nil {
					return nil, err
				}
				return nil, fmt.Errorf("input closed before question %s was answered", q.ID)
			}
			text := strings.TrimSpace(scanner.Text())
			if text != "" {
				answers = append(answers, applications.Answer{QuestionID: q.ID, Text: text})
				break
			}
			if !q.Required {
				break
			}
		}
	}
	return answers, nil
}
