// Package templates supplies the starter document for a new session.
package templates

import "sort"

// Fallback is used for languages without a dedicated template.
const Fallback = "// Start coding here..."

var byLanguage = map[string]string{
	"javascript": `// JavaScript code
function greet(name) {
  console.log('Hello, ' + name + '!');
}

greet('World');`,
	"python": `# Python code
def greet(name):
    print(f'Hello, {name}!')

greet('World')`,
	"java": `// Java code
public class Main {
    public static void main(String[] args) {
        System.out.println("Hello, World!");
    }
}`,
	"cpp": `// C++ code
#include <iostream>
using namespace std;

int main() {
    cout << "Hello, World!" << endl;
    return 0;
}`,
	"go": `// Go code
package main

import "fmt"

func main() {
    fmt.Println("Hello, World!")
}`,
	"typescript": "// TypeScript code\n" +
		"function greet(name: string): void {\n" +
		"  console.log(`Hello, ${name}!`);\n" +
		"}\n" +
		"\n" +
		"greet('World');",
}

// ForLanguage returns the starter document for language, or Fallback.
func ForLanguage(language string) string {
	if tpl, ok := byLanguage[language]; ok {
		return tpl
	}
	return Fallback
}

// Known reports whether language has a dedicated template.
func Known(language string) bool {
	_, ok := byLanguage[language]
	return ok
}

// Languages returns the known language ids in sorted order.
func Languages() []string {
	langs := make([]string, 0, len(byLanguage))
	for lang := range byLanguage {
		langs = append(langs, lang)
	}
	sort.Strings(langs)
	return langs
}
